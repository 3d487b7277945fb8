package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"leadflow/models"
	"leadflow/utils"
)

type IntakeController struct {
	DB      *gorm.DB
	Logger  *logrus.Logger
	Deduper *utils.LeadDeduper
}

func NewIntakeController(db *gorm.DB, logger *logrus.Logger, deduper *utils.LeadDeduper) *IntakeController {
	return &IntakeController{
		DB:      db,
		Logger:  logger,
		Deduper: deduper,
	}
}

// BulkCreateLeads ingests a batch of candidate lead records, deduplicating
// against existing leads by email/phone before insertion.
func (ic *IntakeController) BulkCreateLeads(c *fiber.Ctx) error {
	var input struct {
		Leads []utils.LeadInput `json:"leads"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	for i := range input.Leads {
		if err := utils.ValidateStruct(input.Leads[i]); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
		}
	}

	result, createdIDs, err := ic.Deduper.BulkIntake(input.Leads)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Lead intake failed", err)
	}

	ic.Logger.WithFields(logrus.Fields{
		"created":      result.Created,
		"deduplicated": result.Deduplicated,
		"errors":       result.Errors,
	}).Info("bulk lead intake processed")

	if createdIDs == nil {
		createdIDs = []uint{}
	}
	return c.JSON(fiber.Map{
		"results":          result,
		"created_lead_ids": createdIDs,
	})
}

// GetLead returns a single lead with its notes and attempts.
func (ic *IntakeController) GetLead(c *fiber.Ctx) error {
	var lead models.Lead
	err := ic.DB.Preload("Notes").Preload("Attempts").
		First(&lead, utils.ParseUint(c.Params("id"))).Error
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
	}
	return c.JSON(utils.SuccessResponse(lead))
}
