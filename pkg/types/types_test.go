package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWorkID(t *testing.T) {
	tests := []struct {
		name      string
		id        string
		jobID     string
		taskIndex int
		split     int
		wantErr   bool
	}{
		{
			name:      "single split workunit",
			id:        "abc123_0_0",
			jobID:     "abc123",
			taskIndex: 0,
			split:     0,
		},
		{
			name:      "later stage and split",
			id:        "job9_5_12",
			jobID:     "job9",
			taskIndex: 5,
			split:     12,
		},
		{
			name:    "too few parts",
			id:      "job9_5",
			wantErr: true,
		},
		{
			name:    "empty id",
			id:      "",
			wantErr: true,
		},
		{
			name:    "non-numeric task index",
			id:      "job9_x_0",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobID, taskIndex, split, err := ParseWorkID(tt.id)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.jobID, jobID)
			assert.Equal(t, tt.taskIndex, taskIndex)
			assert.Equal(t, tt.split, split)
		})
	}
}

func TestWorkIDRoundTrip(t *testing.T) {
	id := WorkID("j1", 5, 3)
	jobID, taskIndex, split, err := ParseWorkID(id)
	require.NoError(t, err)
	assert.Equal(t, "j1", jobID)
	assert.Equal(t, 5, taskIndex)
	assert.Equal(t, 3, split)
}

func TestPipelineMatrix(t *testing.T) {
	p := Pipeline{
		Name:     "chain3",
		NumTasks: 3,
		Deps:     [][2]int{{1, 0}, {2, 1}},
	}
	m := p.Matrix()
	require.Len(t, m, 3)
	assert.Equal(t, []int{0, 0, 0}, m[0])
	assert.Equal(t, []int{1, 0, 0}, m[1])
	assert.Equal(t, []int{0, 1, 0}, m[2])
}

func TestPipelineMatrixIgnoresOutOfRangeDeps(t *testing.T) {
	p := Pipeline{NumTasks: 2, Deps: [][2]int{{1, 0}, {5, 0}, {0, -1}}}
	m := p.Matrix()
	assert.Equal(t, []int{0, 0}, m[0])
	assert.Equal(t, []int{1, 0}, m[1])
}

func TestJobReadinessAndDependencyClearing(t *testing.T) {
	job := NewJob("j1", 100, 3, Pipeline{NumTasks: 3, Deps: [][2]int{{1, 0}, {2, 1}}}.Matrix())

	assert.True(t, job.TaskReady(0))
	assert.False(t, job.TaskReady(1))
	assert.False(t, job.TaskReady(2))

	job.ClearDependency(0)
	assert.True(t, job.TaskReady(1))
	assert.False(t, job.TaskReady(2))

	job.ClearDependency(1)
	assert.True(t, job.TaskReady(2))
}

func TestNewJobCopiesDependencyMatrix(t *testing.T) {
	dep := MGRASTPipeline.Matrix()
	a := NewJob("a", 0, 10, dep)
	b := NewJob("b", 0, 10, dep)

	a.ClearDependency(0)
	assert.True(t, a.TaskReady(1))
	assert.False(t, b.TaskReady(1), "jobs must not share dependency rows")
	assert.Equal(t, 1, dep[1][0], "source matrix must stay untouched")
}

func TestMGRASTPipelineIsALinearChain(t *testing.T) {
	m := MGRASTPipeline.Matrix()
	require.Len(t, m, 10)
	for i := 1; i < 10; i++ {
		assert.Equal(t, 1, m[i][i-1])
	}
	assert.True(t, MGRASTPipeline.NumTasks == len(m))
}
