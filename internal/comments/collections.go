package comments

import (
	"slices"

	"feedsync/internal/models"
)

// topLevel inserts new comments at the head without re-sorting.
type topLevel struct{ t *Tree }

func (c topLevel) Insert(item models.Comment) {
	c.t.comments = slices.Insert(c.t.comments, 0, item)
	c.t.onChange()
}

func (c topLevel) Replace(tempID string, item models.Comment) bool {
	i := c.t.commentIndex(tempID)
	if i < 0 {
		return false
	}
	c.t.comments[i] = item
	c.t.onChange()
	return true
}

func (c topLevel) Remove(tempID string) bool {
	i := c.t.commentIndex(tempID)
	if i < 0 {
		return false
	}
	c.t.comments = slices.Delete(c.t.comments, i, i+1)
	c.t.onChange()
	return true
}

// replies appends new replies to the end of one parent's list.
type replies struct {
	t        *Tree
	parentID string
}

func (r replies) list() *[]models.Reply {
	if parent := r.t.comment(r.parentID); parent != nil {
		return &parent.Replies
	}
	return nil
}

func (r replies) index(id string) (*[]models.Reply, int) {
	list := r.list()
	if list == nil {
		return nil, -1
	}
	return list, slices.IndexFunc(*list, func(rep models.Reply) bool { return rep.ID == id })
}

func (r replies) Insert(item models.Reply) {
	if list := r.list(); list != nil {
		*list = append(*list, item)
		r.t.onChange()
	}
}

func (r replies) Replace(tempID string, item models.Reply) bool {
	list, i := r.index(tempID)
	if i < 0 {
		return false
	}
	(*list)[i] = item
	r.t.onChange()
	return true
}

func (r replies) Remove(tempID string) bool {
	list, i := r.index(tempID)
	if i < 0 {
		return false
	}
	*list = slices.Delete(*list, i, i+1)
	r.t.onChange()
	return true
}
