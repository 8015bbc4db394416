package models

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var potatoClasses = []string{"Potato___Early_blight", "Potato___Late_blight", "Potato___healthy"}

func TestNewClassSet(t *testing.T) {
	set, err := NewClassSet(potatoClasses)
	require.NoError(t, err)

	assert.Equal(t, 3, set.Len())
	assert.Equal(t, potatoClasses, set.Names())

	name, err := set.Name(1)
	require.NoError(t, err)
	assert.Equal(t, "Potato___Late_blight", name)

	idx, err := set.Index("Potato___healthy")
	require.NoError(t, err)
	assert.Equal(t, 2, idx)

	_, err = set.Name(3)
	assert.Error(t, err)
	_, err = set.Name(-1)
	assert.Error(t, err)
	_, err = set.Index("Tomato___healthy")
	assert.Error(t, err)
}

func TestNewClassSetInvalid(t *testing.T) {
	tests := []struct {
		name  string
		names []string
	}{
		{"empty", nil},
		{"blank name", []string{"a", ""}},
		{"duplicate", []string{"a", "b", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClassSet(tt.names)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidClassSet))
		})
	}
}

func TestClassSetMatches(t *testing.T) {
	set, err := NewClassSet(potatoClasses)
	require.NoError(t, err)

	assert.NoError(t, set.Matches([]string{"Potato___Early_blight", "Potato___Late_blight", "Potato___healthy"}))
	assert.Error(t, set.Matches([]string{"Potato___Late_blight", "Potato___Early_blight", "Potato___healthy"}))
	assert.Error(t, set.Matches(potatoClasses[:2]))
}

func TestParseLabel(t *testing.T) {
	tests := []struct {
		name     string
		plant    string
		status   string
		headline string
	}{
		{"Potato___Early_blight", "Potato", "Early blight", "This is a Potato leaf with Early blight"},
		{"Potato___healthy", "Potato", "healthy", "This is a Potato leaf with healthy"},
		{"Corn___Northern_Leaf_Blight", "Corn", "Northern Leaf Blight", "This is a Corn leaf with Northern Leaf Blight"},
		{"Tomato___Leaf___Mold", "", "", "Prediction: Tomato___Leaf___Mold"},
		{"Potato______healthy", "", "", "Prediction: Potato______healthy"},
		{"HealthyLeaf", "", "", "Prediction: HealthyLeaf"},
		{"Pepper_bell_healthy", "", "", "Prediction: Pepper_bell_healthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label := ParseLabel(tt.name)
			assert.Equal(t, tt.name, label.Raw)
			assert.Equal(t, tt.plant, label.Plant)
			assert.Equal(t, tt.status, label.Status)
			assert.Equal(t, tt.headline, label.Headline())
		})
	}
}
