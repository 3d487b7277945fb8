package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"leadflow/models"
	"leadflow/utils"
)

type DispatchController struct {
	DB     *gorm.DB
	Logger *logrus.Logger
	Router *utils.ChannelRouter
}

func NewDispatchController(db *gorm.DB, logger *logrus.Logger, router *utils.ChannelRouter) *DispatchController {
	return &DispatchController{
		DB:     db,
		Logger: logger,
		Router: router,
	}
}

// DispatchContact routes one contact attempt for a lead on a channel.
func (dc *DispatchController) DispatchContact(c *fiber.Ctx) error {
	var input struct {
		LeadID     uint   `json:"lead_id" validate:"required"`
		CampaignID *uint  `json:"campaign_id"`
		Channel    string `json:"channel" validate:"required,oneof=CALL SMS EMAIL"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var lead models.Lead
	if err := dc.DB.First(&lead, input.LeadID).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
	}

	var campaign *models.Campaign
	if input.CampaignID != nil {
		campaign = &models.Campaign{}
		if err := dc.DB.First(campaign, *input.CampaignID).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", nil)
		}
	}

	result, err := dc.Router.RouteContact(&lead, campaign, models.Channel(input.Channel))
	if err != nil {
		status := fiber.StatusUnprocessableEntity
		if errors.Is(err, utils.ErrContactNotPermitted) || errors.Is(err, utils.ErrFrequencyCapped) {
			status = fiber.StatusConflict
		}
		dc.Logger.WithError(err).WithFields(logrus.Fields{
			"lead_id": input.LeadID,
			"channel": input.Channel,
		}).Warn("contact dispatch refused or failed")
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(result)
}
