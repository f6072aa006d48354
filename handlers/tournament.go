package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"tournament-registration/middleware"
	"tournament-registration/models"
	"tournament-registration/repository"
	"tournament-registration/services"
	"tournament-registration/utils"
)

type tournamentView struct {
	*models.Tournament
	Status             models.TournamentStatus `json:"status"`
	AvailableSlots     int                     `json:"available_slots"`
	EntryFeeFormatted  string                  `json:"entry_fee_formatted"`
	PrizePoolFormatted string                  `json:"prize_pool_formatted"`
}

func SetupTournamentRoutes(app *fiber.App, store repository.DocumentStore, now func() time.Time) {
	// 🔓 Public: what the REVIEW screen shows
	app.Get("/tournaments/:id", func(c *fiber.Ctx) error {
		t, err := store.GetTournament(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(tournamentView{
			Tournament:         t,
			Status:             t.Status(now()),
			AvailableSlots:     t.AvailableSlots(),
			EntryFeeFormatted:  utils.FormatMoney(t.EntryFee, t.Currency),
			PrizePoolFormatted: utils.FormatMoney(t.PrizePool, t.Currency),
		})
	})

	// 🔐 Prerequisite preview for the signed-in user
	app.Get("/s/tournaments/:id/prerequisites", func(c *fiber.Ctx) error {
		_, result, err := services.LoadPrerequisites(c.UserContext(), store, c.Params("id"), middleware.CurrentUserID(c), now())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"prerequisites": result,
			"failures":      result.Failures(),
			"reason":        result.Reason(),
		})
	})
}
