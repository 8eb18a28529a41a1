package fakeapi

import (
	"strings"
	"sync"

	"feedsync/internal/models"

	"github.com/gofiber/fiber/v2"
)

type fault struct {
	status int
	left   int
}

// faults holds injected failures keyed by "METHOD /path", with paths
// relative to the /api prefix.
type faults struct {
	mu      sync.Mutex
	pending map[string][]*fault
}

func newFaults() *faults {
	return &faults{pending: make(map[string][]*fault)}
}

func faultKey(method, path string) string {
	return strings.ToUpper(method) + " " + path
}

func (f *faults) add(method, path string, status, count int) {
	if count <= 0 {
		count = 1
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := faultKey(method, path)
	f.pending[key] = append(f.pending[key], &fault{status: status, left: count})
}

func (f *faults) take(method, path string) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := faultKey(method, path)
	queue := f.pending[key]
	if len(queue) == 0 {
		return 0, false
	}
	head := queue[0]
	head.left--
	if head.left == 0 {
		queue = queue[1:]
	}
	if len(queue) == 0 {
		delete(f.pending, key)
	} else {
		f.pending[key] = queue
	}
	return head.status, true
}

func (f *faults) middleware(c *fiber.Ctx) error {
	status, ok := f.take(c.Method(), strings.TrimPrefix(c.Path(), "/api"))
	if !ok {
		return c.Next()
	}
	return c.Status(status).JSON(models.ErrorResponse{
		Error: "injected failure",
		Code:  "INJECTED",
	})
}
