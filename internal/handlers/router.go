package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"alfredoptarigan/cv-evaluator-pipeline/internal/apperrors"
)

type AppOptions struct {
	Name      string
	BodyLimit int
	Log       logrus.FieldLogger

	Upload   *UploadHandler
	Evaluate *EvaluationHandler
	Result   *ResultHandler
}

// NewApp builds the fiber app with every API route mounted under /api/v1.
func NewApp(opts AppOptions) *fiber.App {
	if opts.Name == "" {
		opts.Name = "AI CV Evaluator API"
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}

	log := opts.Log.WithField("component", "http")

	app := fiber.New(fiber.Config{
		AppName:               opts.Name,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		BodyLimit:             opts.BodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler(log),
	})

	app.Use(recover.New())
	app.Use(requestLogger(log))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	api := app.Group("/api/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now(),
		})
	})

	api.Post("/upload", opts.Upload.HandleUpload)
	api.Post("/evaluate", opts.Evaluate.HandleEvaluate)
	api.Get("/result/:id", opts.Result.HandleGetResult)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": opts.Name,
			"version": "1.0.0",
			"endpoints": []string{
				"POST /api/v1/upload",
				"POST /api/v1/evaluate",
				"GET /api/v1/result/:id",
			},
		})
	})

	return app
}

// StatusCode maps an application error to its HTTP status.
func StatusCode(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}

	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeNotFound:
		return fiber.StatusNotFound
	case apperrors.ErrCodeConflict:
		return fiber.StatusConflict
	case apperrors.ErrCodeValidation, apperrors.ErrCodeUnsupportedFormat:
		return fiber.StatusBadRequest
	case apperrors.ErrCodeTransientInfra:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func ErrorHandler(log logrus.FieldLogger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := StatusCode(err)

		message := err.Error()
		if code == fiber.StatusInternalServerError {
			log.WithError(err).WithField("path", c.Path()).Error("❌ Request failed")
			message = "internal server error"
		}

		body := fiber.Map{
			"error": message,
			"code":  code,
		}
		if appCode := apperrors.GetCode(err); appCode != "" {
			body["type"] = appCode
		}

		return c.Status(code).JSON(body)
	}
}

func requestLogger(log logrus.FieldLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = StatusCode(err)
		}

		log.WithFields(logrus.Fields{
			"method":  c.Method(),
			"path":    c.Path(),
			"status":  status,
			"latency": time.Since(start).String(),
		}).Info("request")

		return err
	}
}
