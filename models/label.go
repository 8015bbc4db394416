package models

import "strings"

// labelSeparator splits the plant from the status in a class name.
const labelSeparator = "___"

// Label is the human readable form of a class name.
type Label struct {
	// Raw is the class name as configured.
	Raw string `json:"class"`
	// Plant is set when Raw has the Plant___Status form.
	Plant string `json:"plant_type,omitempty"`
	// Status is the disease status with underscores shown as spaces.
	Status string `json:"disease_status,omitempty"`
}

// ParseLabel splits a name holding exactly one "___" into plant and status.
// Underscores in the status are shown as spaces. Any other name is kept verbatim.
func ParseLabel(name string) Label {
	if strings.Count(name, labelSeparator) != 1 {
		return Label{Raw: name}
	}
	plant, status, _ := strings.Cut(name, labelSeparator)
	return Label{
		Raw:    name,
		Plant:  plant,
		Status: strings.ReplaceAll(status, "_", " "),
	}
}

// Structured reports whether the plant and status could be extracted.
func (l Label) Structured() bool {
	return l.Plant != "" || l.Status != ""
}

// Headline is the sentence shown with a prediction.
func (l Label) Headline() string {
	if !l.Structured() {
		return "Prediction: " + l.Raw
	}
	return "This is a " + l.Plant + " leaf with " + l.Status
}
