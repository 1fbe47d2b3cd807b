package rubric

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joseph-ayodele/essaycoach/internal/entity"
)

func TestRender(t *testing.T) {
	r := &entity.Rubric{
		Description: "Essay Writing Rubric",
		Dimensions: []entity.RubricDimension{
			{Name: "Content", Weight: 60, Levels: []entity.ScoreLevel{
				{MinScore: 0, MaxScore: 29, Description: "Weak: thin argument"},
				{MinScore: 30, MaxScore: 60, Description: "Strong: clear argument"},
			}},
			{Name: "Style", Weight: 40, Levels: []entity.ScoreLevel{
				{MinScore: 0, MaxScore: 40, Description: "Any"},
			}},
		},
	}

	want := "Rubric: Essay Writing Rubric\n" +
		"\n" +
		"Evaluation Criteria:\n" +
		"\n" +
		"Content (Weight: 60.0%)\n" +
		"  - 30-60 pts: Strong: clear argument\n" +
		"  - 0-29 pts: Weak: thin argument\n" +
		"\n" +
		"Style (Weight: 40.0%)\n" +
		"  - 0-40 pts: Any\n"
	assert.Equal(t, want, Render(r))
	assert.Equal(t, 0, r.Dimensions[0].Levels[0].MinScore, "input order untouched")
}

func TestRenderUntitled(t *testing.T) {
	assert.Equal(t, "Rubric: Untitled Rubric\n\nEvaluation Criteria:\n", Render(&entity.Rubric{}))
}

func TestLevelDescription(t *testing.T) {
	assert.Equal(t, "Excellent: Demonstrates mastery", LevelDescription("Excellent", "Demonstrates mastery"))
	assert.Equal(t, "Excellent", LevelDescription("Excellent", "  "))
}
