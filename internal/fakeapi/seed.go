package fakeapi

import (
	"fmt"
	"io"
	"os"
	"time"

	"feedsync/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"gopkg.in/yaml.v3"
)

// DefaultPassword is the password of every generated account.
const DefaultPassword = "password"

// SeedOptions controls generated demo data.
type SeedOptions struct {
	Seed         int64
	Users        int
	PostsPerUser int
	// MaxDays spreads created_at over the past MaxDays days.
	MaxDays int
}

var videoIDs = []string{"dQw4w9WgXcQ", "9bZkp7q19f0", "3JZ_D3ELwOQ", "L_jWHffIx5E", "kXYiU_JCYtU"}

// Generate fills store with deterministic fake users, posts, follows, likes
// and comments. The same options always produce the same data.
func Generate(store *Store, opts SeedOptions) error {
	if opts.Users <= 0 {
		opts.Users = 5
	}
	if opts.PostsPerUser <= 0 {
		opts.PostsPerUser = 12
	}
	if opts.MaxDays <= 0 {
		opts.MaxDays = 30
	}
	faker := gofakeit.New(opts.Seed)
	now := store.now()

	users := make([]models.UserSummary, 0, opts.Users)
	for i := 0; i < opts.Users; i++ {
		u := models.UserSummary{
			ID:          fmt.Sprintf("user-%d", i+1),
			DisplayName: faker.Name(),
			AvatarURL:   fmt.Sprintf("https://picsum.photos/seed/%s/128/128", faker.UUID()),
		}
		username := fmt.Sprintf("%s%d", faker.Username(), i+1)
		if i == 0 {
			username = "demo"
		}
		if err := store.AddUser(u, username, DefaultPassword, faker.Sentence(8)); err != nil {
			return err
		}
		users = append(users, u)
	}

	var postIDs []string
	for _, u := range users {
		for j := 0; j < opts.PostsPerUser; j++ {
			age := time.Duration(faker.IntRange(0, opts.MaxDays*24*60)) * time.Minute
			p := models.Post{
				Author:    u,
				Content:   faker.Paragraph(1, 2, 8, " "),
				CreatedAt: now.Add(-age),
			}
			switch faker.IntRange(0, 3) {
			case 0:
				id := videoIDs[faker.IntRange(0, len(videoIDs)-1)]
				p.Media = []models.Media{{Kind: models.MediaVideo, URL: "https://www.youtube.com/watch?v=" + id}}
			case 1:
				p.Media = []models.Media{{Kind: models.MediaImage, URL: fmt.Sprintf("https://picsum.photos/seed/%s/800/800", faker.UUID())}}
			case 2:
				p.JobStatus = models.JobStatusOpen
			}
			id, err := store.AddPost(p)
			if err != nil {
				return err
			}
			postIDs = append(postIDs, id)
		}
	}

	for _, follower := range users {
		for _, target := range users {
			if follower.ID != target.ID && faker.Bool() {
				store.Follow(follower.ID, target.ID)
			}
		}
	}

	for _, postID := range postIDs {
		for _, u := range users {
			if faker.IntRange(0, 2) == 0 {
				if _, _, err := store.SetLike(u.ID, postID, true); err != nil {
					return err
				}
			}
		}
		for n := faker.IntRange(0, 3); n > 0; n-- {
			author := users[faker.IntRange(0, len(users)-1)]
			c, err := store.AddComment(author.ID, postID, faker.Sentence(6))
			if err != nil {
				return err
			}
			if faker.Bool() {
				replier := users[faker.IntRange(0, len(users)-1)]
				if _, err := store.AddReply(replier.ID, c.ID, faker.Sentence(5)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Fixtures is a hand-written world loaded from YAML.
type Fixtures struct {
	Users []struct {
		ID          string `yaml:"id"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		DisplayName string `yaml:"display_name"`
		Bio         string `yaml:"bio"`
	} `yaml:"users"`
	Posts []struct {
		ID        string `yaml:"id"`
		Author    string `yaml:"author"`
		Content   string `yaml:"content"`
		Video     string `yaml:"video"`
		Image     string `yaml:"image"`
		JobStatus string `yaml:"job_status"`
		AgeHours  int    `yaml:"age_hours"`
	} `yaml:"posts"`
	Follows []struct {
		Follower string `yaml:"follower"`
		Target   string `yaml:"target"`
	} `yaml:"follows"`
}

// DecodeFixtures parses YAML fixtures, rejecting unknown fields.
func DecodeFixtures(r io.Reader) (Fixtures, error) {
	var fx Fixtures
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil && err != io.EOF {
		return Fixtures{}, fmt.Errorf("decode fixtures: %w", err)
	}
	return fx, nil
}

// LoadFixturesFile decodes the fixtures at path into store.
func LoadFixturesFile(store *Store, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	fx, err := DecodeFixtures(f)
	if err != nil {
		return err
	}
	return fx.Apply(store)
}

// Apply adds the fixtures to store.
func (fx Fixtures) Apply(store *Store) error {
	for _, u := range fx.Users {
		password := u.Password
		if password == "" {
			password = DefaultPassword
		}
		summary := models.UserSummary{ID: u.ID, DisplayName: u.DisplayName}
		if err := store.AddUser(summary, u.Username, password, u.Bio); err != nil {
			return err
		}
	}

	now := store.now()
	for _, p := range fx.Posts {
		post := models.Post{
			ID:        p.ID,
			Author:    models.UserSummary{ID: p.Author},
			Content:   p.Content,
			CreatedAt: now.Add(-time.Duration(p.AgeHours) * time.Hour),
		}
		if p.JobStatus != "" {
			status, err := models.ParseJobStatus(p.JobStatus)
			if err != nil {
				return fmt.Errorf("post %s: %w", p.ID, err)
			}
			post.JobStatus = status
		}
		if p.Video != "" {
			post.Media = append(post.Media, models.Media{Kind: models.MediaVideo, URL: p.Video})
		}
		if p.Image != "" {
			post.Media = append(post.Media, models.Media{Kind: models.MediaImage, URL: p.Image})
		}
		if _, err := store.AddPost(post); err != nil {
			return fmt.Errorf("post %s: %w", p.ID, err)
		}
	}

	for _, f := range fx.Follows {
		if f.Follower == f.Target {
			return fmt.Errorf("fixture follow %s -> %s: cannot follow yourself", f.Follower, f.Target)
		}
		store.Follow(f.Follower, f.Target)
	}
	return nil
}
