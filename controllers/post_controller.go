package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/quillworks/quill/middleware"
	"github.com/quillworks/quill/models"
	"github.com/quillworks/quill/utils"
)

// PostController manages posts and the comments attached to them. Post
// writes are reserved to the administrator; attempts by members degrade to
// a flash-style notice rather than a hard failure.
type PostController struct {
	db *gorm.DB
}

// NewPostController creates a new PostController instance.
func NewPostController(db *gorm.DB) *PostController {
	return &PostController{db: db}
}

type postRequest struct {
	Title    string `json:"title" binding:"required,min=1"`
	Subtitle string `json:"subtitle"`
	Body     string `json:"body" binding:"required"`
	ImageURL string `json:"image_url"`
}

// CreatePost publishes a new post. Admin only; the author is always the
// caller and the publication date is stamped at creation.
func (p *PostController) CreatePost(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	if !isAdmin(ctx) {
		utils.Notice(ctx, http.StatusForbidden, 40310, "You need to be an admin to publish posts", nil)
		return
	}

	var req postRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		utils.Error(ctx, http.StatusBadRequest, 40021, "title cannot be empty")
		return
	}

	post := models.Post{
		AuthorID:    userID,
		Title:       title,
		Subtitle:    strings.TrimSpace(req.Subtitle),
		Body:        utils.Sanitize(req.Body),
		ImageURL:    strings.TrimSpace(req.ImageURL),
		PublishedOn: utils.PublicationDate(time.Now()),
	}

	if err := p.db.Create(&post).Error; err != nil {
		if utils.IsUniqueViolation(err) {
			utils.Error(ctx, http.StatusConflict, 40910, "a post with this title already exists")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50020, "failed to create post")
		return
	}

	if err := p.db.Preload("Author").First(&post, post.ID).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50021, "failed to load post")
		return
	}

	utils.Success(ctx, gin.H{"post": post})
}

// ListPosts returns every post with its author, in store iteration order.
func (p *PostController) ListPosts(ctx *gin.Context) {
	posts, err := p.allPosts()
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50022, "failed to list posts")
		return
	}
	utils.Success(ctx, gin.H{"posts": posts})
}

// GetPost returns a single post with its comments and their authors.
func (p *PostController) GetPost(ctx *gin.Context) {
	postID, ok := parseID(ctx.Param("id"))
	if !ok {
		utils.Error(ctx, http.StatusNotFound, 40401, "post not found")
		return
	}

	var post models.Post
	err := p.db.Preload("Author").Preload("Comments").Preload("Comments.Author").First(&post, postID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40401, "post not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50023, "failed to load post")
		return
	}

	utils.Success(ctx, gin.H{"post": post})
}

// ListUserPosts returns posts written by a specific user.
func (p *PostController) ListUserPosts(ctx *gin.Context) {
	userID, ok := parseID(ctx.Param("id"))
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40060, "invalid user id")
		return
	}

	var posts []models.Post
	if err := p.db.Where("author_id = ?", userID).Preload("Author").Find(&posts).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50024, "failed to list user posts")
		return
	}

	utils.Success(ctx, gin.H{"posts": posts})
}

// UpdatePost overwrites a post's title, subtitle, image, and body and
// re-assigns authorship to the caller. Admin only; the original
// publication date is kept.
func (p *PostController) UpdatePost(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40111, "unauthorized")
		return
	}

	if !isAdmin(ctx) {
		utils.Notice(ctx, http.StatusForbidden, 40311, "You need to be an admin to edit posts", nil)
		return
	}

	var req postRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40024, "invalid request payload")
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		utils.Error(ctx, http.StatusBadRequest, 40025, "title cannot be empty")
		return
	}

	postID, okID := parseID(ctx.Param("id"))
	if !okID {
		utils.Error(ctx, http.StatusNotFound, 40403, "post not found")
		return
	}
	var post models.Post
	if err := p.db.First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40403, "post not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50025, "failed to load post")
		return
	}

	post.Title = title
	post.Subtitle = strings.TrimSpace(req.Subtitle)
	post.Body = utils.Sanitize(req.Body)
	post.ImageURL = strings.TrimSpace(req.ImageURL)
	post.AuthorID = userID
	if err := p.db.Save(&post).Error; err != nil {
		if utils.IsUniqueViolation(err) {
			utils.Error(ctx, http.StatusConflict, 40911, "a post with this title already exists")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50026, "failed to update post")
		return
	}

	if err := p.db.Preload("Author").First(&post, post.ID).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50027, "failed to load post")
		return
	}

	utils.Success(ctx, gin.H{"post": post})
}

// DeletePost removes a post and, through the foreign-key cascade, its
// comments. Members get a warning notice and the post stays; either way
// the response carries the current post list.
func (p *PostController) DeletePost(ctx *gin.Context) {
	postID, ok := parseID(ctx.Param("id"))
	if !ok {
		utils.Error(ctx, http.StatusNotFound, 40404, "post not found")
		return
	}
	var post models.Post
	if err := p.db.First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40404, "post not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50028, "failed to load post")
		return
	}

	if !isAdmin(ctx) {
		posts, err := p.allPosts()
		if err != nil {
			utils.Error(ctx, http.StatusInternalServerError, 50029, "failed to list posts")
			return
		}
		utils.Notice(ctx, http.StatusForbidden, 40312, "You need to be an admin to delete posts", gin.H{"posts": posts})
		return
	}

	if err := p.db.Select("Comments").Delete(&post).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50030, "failed to delete post")
		return
	}

	posts, err := p.allPosts()
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50031, "failed to list posts")
		return
	}
	utils.Success(ctx, gin.H{"posts": posts})
}

// CreateComment attaches a comment to an existing post, authored by the
// caller.
func (p *PostController) CreateComment(ctx *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
	}

	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40030, "invalid request payload")
		return
	}

	text := utils.Sanitize(strings.TrimSpace(req.Text))
	if text == "" {
		utils.Error(ctx, http.StatusBadRequest, 40031, "comment cannot be empty")
		return
	}

	postID, ok := parseID(ctx.Param("id"))
	if !ok {
		utils.Error(ctx, http.StatusNotFound, 40402, "post not found")
		return
	}
	var post models.Post
	if err := p.db.First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40402, "post not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50032, "failed to load post")
		return
	}

	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40112, "unauthorized")
		return
	}

	comment := models.Comment{
		PostID:   post.ID,
		AuthorID: userID,
		Text:     text,
	}

	if err := p.db.Create(&comment).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50033, "failed to create comment")
		return
	}

	if err := p.db.Preload("Author").First(&comment, comment.ID).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50034, "failed to load comment")
		return
	}

	utils.Success(ctx, gin.H{"comment": comment})
}

func (p *PostController) allPosts() ([]models.Post, error) {
	var posts []models.Post
	if err := p.db.Preload("Author").Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

// parseID converts a path parameter into a numeric primary key. Anything
// else can never name a row, so it must not reach the query layer.
func parseID(raw string) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func getUserID(ctx *gin.Context) (uint, bool) {
	value, exists := ctx.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		return uint(v), true
	case int64:
		return uint(v), true
	case float64:
		return uint(v), true
	default:
		return 0, false
	}
}

func isAdmin(ctx *gin.Context) bool {
	roleVal, exists := ctx.Get(middleware.ContextRoleKey)
	if !exists {
		return false
	}
	role, _ := roleVal.(string)
	return role == models.RoleAdmin
}
