// Package modeltest provides model fixtures shared by tests.
package modeltest

import "github.com/input-output-hk/catalyst-forge-libs/modelsync/model"

// Sample returns a small model with fixed identifiers covering every kind of
// object: top-level and nested folders, elements, a relationship and
// properties.
func Sample() *model.Model {
	return &model.Model{
		ID:      "id-model",
		Name:    "Sample Model",
		Purpose: "Fixture for synchronization tests",
		Properties: []model.Property{
			{Key: "owner", Value: "architecture"},
		},
		Folders: []model.Folder{
			{
				ID:   "id-folder-business",
				Name: "Business",
				Type: model.FolderTypeBusiness,
				Elements: []model.Element{
					{ID: "id-actor", Type: "BusinessActor", Name: "Customer", Documentation: "A paying customer"},
					{ID: "id-role", Type: "BusinessRole", Name: "Buyer", Properties: []model.Property{{Key: "tier", Value: "gold"}}},
				},
				Folders: []model.Folder{
					{
						ID:   "id-folder-processes",
						Name: "Processes",
						Type: model.FolderTypeUser,
						Elements: []model.Element{
							{ID: "id-process", Type: "BusinessProcess", Name: "Order"},
						},
					},
				},
			},
			{
				ID:   "id-folder-application",
				Name: "Application",
				Type: model.FolderTypeApplication,
				Elements: []model.Element{
					{ID: "id-app", Type: "ApplicationComponent", Name: "Shop"},
				},
			},
			{
				ID:   "id-folder-relations",
				Name: "Relations",
				Type: model.FolderTypeRelations,
				Relationships: []model.Relationship{
					{ID: "id-rel-serves", Type: "ServingRelationship", Source: "id-app", Target: "id-actor"},
					{ID: "id-rel-assign", Type: "AssignmentRelationship", Name: "plays", Source: "id-actor", Target: "id-role"},
				},
			},
		},
	}
}
