package handlers

import (
	"github.com/gofiber/fiber/v2"

	"tournament-registration/middleware"
	"tournament-registration/models"
	"tournament-registration/services"
)

// stepDataPatch carries only the fields the client changed; nil means untouched.
type stepDataPatch struct {
	PaymentMethod *string   `json:"payment_method"`
	TeamName      *string   `json:"team_name"`
	PlayerIDs     *[]string `json:"player_ids"`
	TermsAccepted *bool     `json:"terms_accepted"`
}

func (p stepDataPatch) apply(d models.RegistrationStepData) models.RegistrationStepData {
	if p.PaymentMethod != nil {
		d.PaymentMethod = *p.PaymentMethod
	}
	if p.TeamName != nil {
		d.TeamName = *p.TeamName
	}
	if p.PlayerIDs != nil {
		d.PlayerIDs = append([]string(nil), (*p.PlayerIDs)...)
	}
	if p.TermsAccepted != nil {
		d.TermsAccepted = *p.TermsAccepted
	}
	return d
}

func flowResponse(id string, s models.RegistrationUiState) fiber.Map {
	return fiber.Map{"session_id": id, "state": s}
}

func SetupRegistrationRoutes(app *fiber.App, sessions *services.SessionManager) {
	secured := app.Group("/s/registrations")

	// withFlow resolves the caller's session and hands it to fn.
	withFlow := func(fn func(c *fiber.Ctx, flow *services.RegistrationFlow) (models.RegistrationUiState, error)) fiber.Handler {
		return func(c *fiber.Ctx) error {
			id := c.Params("session")
			flow, err := sessions.Get(id, middleware.CurrentUserID(c))
			if err != nil {
				return respondError(c, err)
			}
			state, err := fn(c, flow)
			if err != nil {
				return respondError(c, err)
			}
			return c.JSON(flowResponse(id, state))
		}
	}

	secured.Post("/", func(c *fiber.Ctx) error {
		var req struct {
			TournamentID string `json:"tournament_id"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
		}
		id, flow, err := sessions.Start(req.TournamentID, middleware.CurrentUserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(flowResponse(id, flow.State()))
	})

	secured.Get("/:session", withFlow(func(c *fiber.Ctx, flow *services.RegistrationFlow) (models.RegistrationUiState, error) {
		return flow.State(), nil
	}))

	secured.Post("/:session/next", withFlow(func(c *fiber.Ctx, flow *services.RegistrationFlow) (models.RegistrationUiState, error) {
		return flow.Next(c.UserContext())
	}))

	secured.Post("/:session/previous", withFlow(func(c *fiber.Ctx, flow *services.RegistrationFlow) (models.RegistrationUiState, error) {
		return flow.Previous()
	}))

	secured.Patch("/:session/data", withFlow(func(c *fiber.Ctx, flow *services.RegistrationFlow) (models.RegistrationUiState, error) {
		var patch stepDataPatch
		if err := c.BodyParser(&patch); err != nil {
			return models.RegistrationUiState{}, models.NewValidationError("body", "invalid JSON: "+err.Error())
		}
		return flow.UpdateData(patch.apply)
	}))

	secured.Post("/:session/submit", withFlow(func(c *fiber.Ctx, flow *services.RegistrationFlow) (models.RegistrationUiState, error) {
		return flow.Submit(c.UserContext())
	}))

	secured.Delete("/:session", func(c *fiber.Ctx) error {
		if err := sessions.Cancel(c.Params("session"), middleware.CurrentUserID(c)); err != nil {
			return respondError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}
