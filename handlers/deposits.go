package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"tournament-registration/auth"
	"tournament-registration/middleware"
	"tournament-registration/models"
	"tournament-registration/services"
)

const maxUploadBytes = 10 << 20

// readEvidence returns nil when the form has no such file.
func readEvidence(c *fiber.Ctx, name string) (*services.EvidenceFile, error) {
	fh, err := c.FormFile(name)
	if err != nil || fh == nil || fh.Size == 0 {
		return nil, nil
	}
	if fh.Size > maxUploadBytes {
		return nil, models.NewValidationError(name, name+" exceeds 10MB")
	}
	return readFileHeader(fh)
}

func readFileHeader(fh *multipart.FileHeader) (*services.EvidenceFile, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return &services.EvidenceFile{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func parseProofSubmission(c *fiber.Ctx) (services.ProofSubmission, error) {
	sub := services.ProofSubmission{
		RequestID: strings.TrimSpace(c.FormValue("request_id")),
		UserID:    middleware.CurrentUserID(c),
		Currency:  c.FormValue("currency"),
		Method:    models.PaymentMethodKind(strings.ToUpper(strings.TrimSpace(c.FormValue("payment_method")))),
		Reference: c.FormValue("reference"),
	}
	if sub.RequestID == "" {
		sub.RequestID = c.Get("X-Request-ID")
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(c.FormValue("amount")))
	if err != nil {
		return sub, models.NewValidationError("amount", "amount must be a number")
	}
	sub.Amount = amount

	if raw := c.FormValue("fields"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &sub.Fields); err != nil {
			return sub, models.NewValidationError("fields", "fields must be a JSON object of strings")
		}
	}

	if sub.Evidence, err = readEvidence(c, "evidence"); err != nil {
		return sub, err
	}
	if sub.BankStatement, err = readEvidence(c, "bank_statement"); err != nil {
		return sub, err
	}
	if sub.Receipt, err = readEvidence(c, "receipt"); err != nil {
		return sub, err
	}
	return sub, nil
}

func SetupDepositRoutes(app *fiber.App, pipeline *services.PaymentProofPipeline, review *services.DepositReviewService, streamAuth fiber.Handler, pollEvery time.Duration) {
	// 🔐 User side
	app.Post("/s/deposits", func(c *fiber.Ctx) error {
		sub, err := parseProofSubmission(c)
		if err != nil {
			return respondError(c, err)
		}
		id, err := pipeline.SubmitProof(c.UserContext(), sub)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"deposit_id": id,
			"status":     models.DepositPending,
		})
	})

	app.Get("/s/deposits/:id", func(c *fiber.Ctx) error {
		d, err := pipeline.Deposit(c.UserContext(), c.Params("id"), middleware.CurrentUserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(d)
	})

	// 📡 Status stream; EventSource authenticates through the query string
	app.Get("/deposits/:id/stream", streamAuth, func(c *fiber.Ctx) error {
		id := c.Params("id")
		userID := middleware.CurrentUserID(c)
		if _, err := pipeline.Deposit(c.UserContext(), id, userID); err != nil {
			return respondError(c, err)
		}

		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("X-Accel-Buffering", "no")

		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			w.WriteString(":\n\n")
			if err := w.Flush(); err != nil {
				return
			}
			updates := pipeline.WatchDeposit(ctx, id, userID, pollEvery)
			heartbeat := time.NewTicker(15 * time.Second)
			defer heartbeat.Stop()
			for {
				select {
				case d, ok := <-updates:
					if !ok {
						return
					}
					payload, _ := json.Marshal(d)
					fmt.Fprintf(w, "event: deposit\ndata: %s\n\n", payload)
				case <-heartbeat.C:
					w.WriteString(":\n\n")
				}
				if err := w.Flush(); err != nil {
					log.Printf("[SSE] client for deposit %s disconnected: %v", id, err)
					return
				}
			}
		})
		return nil
	})

	// 🛡️ Admin review
	admin := app.Group("/s/admin/deposits", middleware.RequireRole(auth.RoleAdmin))

	admin.Get("/", func(c *fiber.Ctx) error {
		list, err := review.Pending(c.UserContext(), c.QueryInt("limit", 50))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"deposits": list})
	})

	admin.Patch("/:id", func(c *fiber.Ctx) error {
		var req struct {
			Status string `json:"status"`
			Note   string `json:"note"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
		}
		d, err := review.Review(c.UserContext(), c.Params("id"), req.Status, req.Note, middleware.CurrentUserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(d)
	})
}
