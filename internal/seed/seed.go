// Package seed holds the fallback data set served before (or without) a
// store connection, and loaded into an empty store by `bpd serve --seed`.
package seed

import "bpdcentral/internal/domain"

// ProgramColors is the fixed palette for grant programs.
var ProgramColors = []string{"indigo", "emerald", "amber", "rose", "sky", "violet"}

// State returns the initial fallback snapshot.
func State() domain.AppState {
	return domain.AppState{
		Tasks: []domain.Task{
			{
				ID:             "t-binders-redacted",
				Name:           "Redacted Subgrantee Binders",
				Description:    "Process and verify redacted versions of subgrantee binders for public release.",
				DependentTasks: []string{"t30"},
				Program:        "BEAD",
				AssignedTo:     "Dayna",
				AssignedToID:   "u-dayna",
				Priority:       domain.PriorityHigh,
				StartDate:      "2025-12-29",
				PlannedEndDate: "2026-01-09",
				Status:         domain.StatusOpen,
				Progress:       0,
				UpdatedAt:      "2025-12-29T09:14:40Z",
				UpdatedBy:      "System Admin",
			},
			{
				ID:             "t-usda-allotment",
				Name:           "USDA Advice Allotment Initial",
				Description:    "Initial filing for USDA funding advice allotment.",
				Program:        "USDA",
				AssignedTo:     "Melia",
				AssignedToID:   "u-melia",
				Priority:       domain.PriorityHigh,
				StartDate:      "2025-12-01",
				PlannedEndDate: "2025-12-15",
				ActualEndDate:  "2025-12-15",
				Status:         domain.StatusCompleted,
				Progress:       100,
				UpdatedAt:      "2025-12-29T08:42:30Z",
				UpdatedBy:      "system",
			},
			{
				ID:             "t-ptc-travel",
				Name:           "Travel for PTC",
				Description:    "Logistics and travel arrangements for the PTC conference.",
				Program:        "BPD",
				AssignedTo:     "Dolorez",
				AssignedToID:   "u-dolorez",
				Priority:       domain.PriorityHigh,
				StartDate:      "2025-12-26",
				PlannedEndDate: "2026-01-09",
				Status:         domain.StatusInProgress,
				Progress:       45,
				UpdatedAt:      "2025-12-29T09:15:40Z",
				UpdatedBy:      "System Admin",
			},
		},
		Programs: []domain.Program{
			{ID: "p-bead", Name: "BEAD", Description: "Broadband Equity, Access, and Deployment", Color: "indigo", CreatedAt: "2024-01-01T00:00:00Z", CreatedBy: "u-admin"},
			{ID: "p-cpf", Name: "CPF", Description: "Capital Projects Fund", Color: "emerald", CreatedAt: "2024-01-01T00:00:00Z", CreatedBy: "u-admin"},
			{ID: "p-usda", Name: "USDA", Description: "USDA Broadband Technical Assistance", Color: "amber", CreatedAt: "2024-01-01T00:00:00Z", CreatedBy: "u-admin"},
			{ID: "p-bpd", Name: "BPD", Description: "Broadband Policy and Development", Color: "rose", CreatedAt: "2024-01-01T00:00:00Z", CreatedBy: "u-admin"},
		},
		Users: []domain.User{
			{ID: "u-admin", Name: "System Admin", Email: "admin@bpd.gov", Role: "Admin", Department: "Operations"},
			{ID: "u-glen", Name: "Glen", Email: "g.hunter@cnmi.gov", Role: "Manager", Department: "BEAD"},
			{ID: "u-melia", Name: "Melia", Email: "me.johnson@dof.gov.mp", Role: "Staff", Department: "BEAD"},
			{ID: "u-dolorez", Name: "Dolorez", Email: "d.salas@bpd.cnmi.gov", Role: "Admin", Department: "BEAD"},
		},
	}
}
