package model

// FolderType identifies the kind of a top-level folder.
// User folders nested inside a top-level folder carry FolderTypeUser.
type FolderType string

const (
	// FolderTypeStrategy holds strategy elements.
	FolderTypeStrategy FolderType = "strategy"

	// FolderTypeBusiness holds business layer elements.
	FolderTypeBusiness FolderType = "business"

	// FolderTypeApplication holds application layer elements.
	FolderTypeApplication FolderType = "application"

	// FolderTypeTechnology holds technology layer elements.
	FolderTypeTechnology FolderType = "technology"

	// FolderTypeMotivation holds motivation elements.
	FolderTypeMotivation FolderType = "motivation"

	// FolderTypeImplementation holds implementation and migration elements.
	FolderTypeImplementation FolderType = "implementation"

	// FolderTypeOther holds elements that fit no other layer.
	FolderTypeOther FolderType = "other"

	// FolderTypeRelations holds relationships.
	FolderTypeRelations FolderType = "relations"

	// FolderTypeUser marks a folder created by the user inside a top-level folder.
	FolderTypeUser FolderType = "user"
)

// String returns the string representation of the FolderType.
func (t FolderType) String() string {
	return string(t)
}

// TopLevel reports whether t names a top-level folder.
func (t FolderType) TopLevel() bool {
	for _, ft := range TopLevelFolderTypes() {
		if ft == t {
			return true
		}
	}
	return false
}

// TopLevelFolderTypes returns the top-level folder types in their canonical order.
func TopLevelFolderTypes() []FolderType {
	return []FolderType{
		FolderTypeStrategy,
		FolderTypeBusiness,
		FolderTypeApplication,
		FolderTypeTechnology,
		FolderTypeMotivation,
		FolderTypeImplementation,
		FolderTypeOther,
		FolderTypeRelations,
	}
}

// Property is a single key/value annotation. Properties are ordered and keys
// may repeat.
type Property struct {
	// Key is the property name.
	Key string `json:"key" yaml:"key"`

	// Value is the property value.
	Value string `json:"value" yaml:"value"`
}

// Model is the root of a version-controlled document.
type Model struct {
	// ID is the persistent identifier of the model.
	ID string `json:"id" yaml:"id"`

	// Name is the display name of the model.
	Name string `json:"name" yaml:"name"`

	// Purpose describes what the model is for.
	Purpose string `json:"purpose,omitempty" yaml:"purpose,omitempty"`

	// Properties are user annotations on the model.
	Properties []Property `json:"properties,omitempty" yaml:"properties,omitempty"`

	// Folders are the top-level folders of the model.
	Folders []Folder `json:"folders,omitempty" yaml:"folders,omitempty"`
}

// Folder groups elements, relationships and nested folders.
type Folder struct {
	// ID is the persistent identifier of the folder.
	ID string `json:"id" yaml:"id"`

	// Name is the display name of the folder.
	Name string `json:"name" yaml:"name"`

	// Type is the folder kind. Nested folders use FolderTypeUser.
	Type FolderType `json:"type" yaml:"type"`

	// Documentation is free-form text attached to the folder.
	Documentation string `json:"documentation,omitempty" yaml:"documentation,omitempty"`

	// Properties are user annotations on the folder.
	Properties []Property `json:"properties,omitempty" yaml:"properties,omitempty"`

	// Elements are the elements stored directly in this folder.
	Elements []Element `json:"elements,omitempty" yaml:"elements,omitempty"`

	// Relationships are the relationships stored directly in this folder.
	Relationships []Relationship `json:"relationships,omitempty" yaml:"relationships,omitempty"`

	// Folders are nested user folders.
	Folders []Folder `json:"folders,omitempty" yaml:"folders,omitempty"`
}

// Element is a typed node of the model.
type Element struct {
	// ID is the persistent identifier of the element.
	ID string `json:"id" yaml:"id"`

	// Type is the element kind (e.g. "BusinessActor").
	Type string `json:"type" yaml:"type"`

	// Name is the display name of the element.
	Name string `json:"name" yaml:"name"`

	// Documentation is free-form text attached to the element.
	Documentation string `json:"documentation,omitempty" yaml:"documentation,omitempty"`

	// Properties are user annotations on the element.
	Properties []Property `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Relationship is a typed edge between two elements.
type Relationship struct {
	// ID is the persistent identifier of the relationship.
	ID string `json:"id" yaml:"id"`

	// Type is the relationship kind (e.g. "ServingRelationship").
	Type string `json:"type" yaml:"type"`

	// Name is the display name of the relationship.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Documentation is free-form text attached to the relationship.
	Documentation string `json:"documentation,omitempty" yaml:"documentation,omitempty"`

	// Source is the ID of the source element.
	Source string `json:"source" yaml:"source"`

	// Target is the ID of the target element.
	Target string `json:"target" yaml:"target"`

	// Properties are user annotations on the relationship.
	Properties []Property `json:"properties,omitempty" yaml:"properties,omitempty"`
}
