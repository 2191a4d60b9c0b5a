// ABOUTME: Milestone extraction from transaction date fields
// ABOUTME: Pure mapping from a transaction to ordered, titled milestones
package sync

import (
	"fmt"
	"time"

	"github.com/harperreed/closingcal/models"
)

type milestoneTemplate struct {
	title       string
	description string
}

// Title takes the address; description takes address, buyer, seller.
var milestoneTemplates = map[string]milestoneTemplate{
	models.CategoryOffer: {
		title:       "Offer Submitted - %s",
		description: "Offer submitted for %s. Buyer: %s. Seller: %s.",
	},
	models.CategoryAcceptance: {
		title:       "Offer Accepted - %s",
		description: "Offer accepted for %s. Buyer: %s. Seller: %s.",
	},
	models.CategoryInspection: {
		title:       "Home Inspection - %s",
		description: "Home inspection at %s. Buyer: %s. Seller: %s.",
	},
	models.CategoryInspectionDeadline: {
		title:       "Inspection Deadline - %s",
		description: "Inspection contingency deadline for %s. Buyer: %s. Seller: %s.",
	},
	models.CategoryAppraisal: {
		title:       "Appraisal - %s",
		description: "Property appraisal at %s. Buyer: %s. Seller: %s.",
	},
	models.CategoryAppraisalDeadline: {
		title:       "Appraisal Deadline - %s",
		description: "Appraisal contingency deadline for %s. Buyer: %s. Seller: %s.",
	},
	models.CategoryFinancingDeadline: {
		title:       "Financing Deadline - %s",
		description: "Financing contingency deadline for %s. Buyer: %s. Seller: %s.",
	},
	models.CategoryTitleDeadline: {
		title:       "Title Deadline - %s",
		description: "Title review deadline for %s. Buyer: %s. Seller: %s.",
	},
	models.CategoryClosing: {
		title:       "Closing - %s",
		description: "Closing for %s. Buyer: %s. Seller: %s.",
	},
	models.CategoryPossession: {
		title:       "Possession - %s",
		description: "Buyer takes possession of %s. Buyer: %s. Seller: %s.",
	},
}

func orTBD(s string) string {
	if s == "" {
		return "TBD"
	}
	return s
}

// ExtractMilestones returns one milestone per populated date, in category order.
func ExtractMilestones(tx *models.Transaction) []models.Milestone {
	if tx == nil {
		return nil
	}

	var milestones []models.Milestone
	for _, category := range models.MilestoneCategories {
		date := tx.MilestoneDate(category)
		if date == nil {
			continue
		}

		tmpl := milestoneTemplates[category]
		milestones = append(milestones, models.Milestone{
			Date:        time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC),
			Category:    category,
			Title:       fmt.Sprintf(tmpl.title, tx.PropertyAddress),
			Description: fmt.Sprintf(tmpl.description, tx.PropertyAddress, orTBD(tx.BuyerName), orTBD(tx.SellerName)),
		})
	}

	return milestones
}
