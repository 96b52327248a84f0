package rest

import (
	domainPost "github.com/AzielCF/az-grouppost/domains/post"
	pkgError "github.com/AzielCF/az-grouppost/pkg/error"
	"github.com/AzielCF/az-grouppost/pkg/utils"
	"github.com/AzielCF/az-grouppost/validations"
	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
)

type Post struct {
	Service domainPost.IPostUsecase
	Clock   clockwork.Clock
}

func InitRestPost(app fiber.Router, service domainPost.IPostUsecase, clock clockwork.Clock) Post {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	rest := Post{Service: service, Clock: clock}
	app.Get("/posts", rest.GetPosts)
	app.Post("/posts", rest.CreatePost)
	app.Delete("/posts/:id", rest.DeletePost)

	return rest
}

func (handler *Post) GetPosts(c *fiber.Ctx) error {
	includeDeleted := c.QueryBool("include_deleted", false)
	status := domainPost.Status(c.Query("status"))

	posts, err := handler.Service.GetPosts(c.UserContext(), includeDeleted, status)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Posts retrieved",
		Results: posts,
	})
}

func (handler *Post) CreatePost(c *fiber.Ctx) error {
	var request domainPost.CreatePostRequest
	if err := c.BodyParser(&request); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError("invalid request body"))
	}

	err := validations.ValidateCreatePost(c.UserContext(), request, handler.Clock.Now())
	utils.PanicIfNeeded(err)

	post, err := handler.Service.AddPost(c.UserContext(), request.ToPost(), false)
	utils.PanicIfNeeded(err)

	results := fiber.Map{"post": post}
	if next, ok := handler.Service.NextRun(post.ID); ok {
		results["nextRun"] = next
	}
	return c.Status(fiber.StatusCreated).JSON(utils.ResponseData{
		Status:  201,
		Code:    "SUCCESS",
		Message: "Post scheduled",
		Results: results,
	})
}

func (handler *Post) DeletePost(c *fiber.Ctx) error {
	force := c.QueryBool("force", false)
	err := handler.Service.DeletePost(c.UserContext(), c.Params("id"), force)
	utils.PanicIfNeeded(err)

	message := "Post cancelled"
	if force {
		message = "Post removed"
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: message,
	})
}
