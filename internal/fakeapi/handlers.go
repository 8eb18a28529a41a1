package fakeapi

import (
	"strconv"

	"feedsync/internal/api"
	"feedsync/internal/models"
	"feedsync/internal/pagination"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// fail maps a store error onto the status the client expects.
func fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case models.IsNotFound(err):
		status = fiber.StatusNotFound
	case models.IsValidation(err):
		status = fiber.StatusUnprocessableEntity
	case models.IsUnauthorized(err):
		status = fiber.StatusForbidden
	}
	return models.RespondWithError(c, status, err)
}

func toggled(c *fiber.Ctx, active bool, count int, err error) error {
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(api.ToggleResult{Active: active, Count: count})
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "service": "feedsync-fakeapi"})
}

func (s *Server) ping(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": "pong"})
}

func (s *Server) login(c *fiber.Ctx) error {
	var req api.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	user, ok := s.store.Authenticate(req.Username, req.Password)
	if !ok {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Invalid credentials"))
	}
	token, err := s.issueToken(user)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}
	return c.JSON(api.LoginResponse{Token: token, User: user})
}

func (s *Server) profile(c *fiber.Ctx) error {
	p, err := s.store.Profile(viewerOf(c), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(p)
}

func (s *Server) userPosts(c *fiber.Ctx) error {
	tab := pagination.Tab(c.Query("tab", string(pagination.TabPosts)))
	switch tab {
	case pagination.TabPosts, pagination.TabVideos, pagination.TabReposts:
	default:
		return fail(c, models.NewValidationError("unknown tab "+strconv.Quote(string(tab))))
	}
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	limit := c.QueryInt("limit", defaultLimit)
	if limit < 1 || limit > maxLimit {
		limit = defaultLimit
	}

	items, more, err := s.store.Page(viewerOf(c), c.Params("id"), tab, page, limit)
	if err != nil {
		return fail(c, err)
	}
	if items == nil {
		items = []models.Post{}
	}
	return c.JSON(api.PostPage{Items: items, HasMore: more})
}

func (s *Server) getPost(c *fiber.Ctx) error {
	p, err := s.store.Post(viewerOf(c), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(p)
}

func (s *Server) deletePost(c *fiber.Ctx) error {
	if err := s.store.DeletePost(viewerOf(c), c.Params("id")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) likePost(on bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		active, count, err := s.store.SetLike(viewerOf(c), c.Params("id"), on)
		return toggled(c, active, count, err)
	}
}

func (s *Server) repost(on bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		active, count, err := s.store.SetRepost(viewerOf(c), c.Params("id"), on)
		return toggled(c, active, count, err)
	}
}

func (s *Server) jobStatus(c *fiber.Ctx) error {
	var body api.StatusBody
	if err := c.BodyParser(&body); err != nil {
		return fail(c, models.NewValidationError("Invalid request body"))
	}
	status, err := models.ParseJobStatus(string(body.Status))
	if err != nil {
		return fail(c, err)
	}
	p, err := s.store.SetJobStatus(viewerOf(c), c.Params("id"), status)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(p)
}

func (s *Server) follow(on bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		active, count, err := s.store.SetFollow(viewerOf(c), c.Params("id"), on)
		return toggled(c, active, count, err)
	}
}

func (s *Server) followState(c *fiber.Ctx) error {
	active, count, err := s.store.FollowState(viewerOf(c), c.Params("id"))
	return toggled(c, active, count, err)
}

func (s *Server) listComments(c *fiber.Ctx) error {
	list, err := s.store.Comments(viewerOf(c), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	if list == nil {
		list = []models.Comment{}
	}
	return c.JSON(list)
}

func (s *Server) createComment(c *fiber.Ctx) error {
	var body api.TextBody
	if err := c.BodyParser(&body); err != nil {
		return fail(c, models.NewValidationError("Invalid request body"))
	}
	comment, err := s.store.AddComment(viewerOf(c), c.Params("id"), body.Text)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}

func (s *Server) createReply(c *fiber.Ctx) error {
	var body api.TextBody
	if err := c.BodyParser(&body); err != nil {
		return fail(c, models.NewValidationError("Invalid request body"))
	}
	reply, err := s.store.AddReply(viewerOf(c), c.Params("parent"), body.Text)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(reply)
}

func (s *Server) deleteComment(c *fiber.Ctx) error {
	if err := s.store.DeleteComment(viewerOf(c), c.Params("id")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) deleteReply(c *fiber.Ctx) error {
	if err := s.store.DeleteReply(viewerOf(c), c.Params("parent"), c.Params("id")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) likeComment(on bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		active, count, err := s.store.SetReaction(viewerOf(c), "", c.Params("id"), on)
		return toggled(c, active, count, err)
	}
}

func (s *Server) likeReply(on bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		active, count, err := s.store.SetReaction(viewerOf(c), c.Params("parent"), c.Params("id"), on)
		return toggled(c, active, count, err)
	}
}
