package types

// Pipeline is a named workflow shape: how many tasks a job of this kind
// has and which tasks depend on which. Jobs reference pipelines by name;
// unknown or empty names fall back to DefaultPipeline.
type Pipeline struct {
	Name     string
	NumTasks int
	// Deps lists [task, dependsOn] pairs.
	Deps [][2]int
}

// Matrix expands the dependency pairs into the full NumTasks x NumTasks
// matrix consumed by the server's readiness scan.
func (p Pipeline) Matrix() [][]int {
	m := make([][]int, p.NumTasks)
	for i := range m {
		m[i] = make([]int, p.NumTasks)
	}
	for _, d := range p.Deps {
		i, j := d[0], d[1]
		if i >= 0 && i < p.NumTasks && j >= 0 && j < p.NumTasks {
			m[i][j] = 1
		}
	}
	return m
}

// MGRASTPipeline is the ten-stage metagenomics pipeline the recorded
// traces were taken from: a linear chain where each stage waits for the
// previous one.
var MGRASTPipeline = Pipeline{
	Name:     "mgrast",
	NumTasks: 10,
	Deps: [][2]int{
		{1, 0}, {2, 1}, {3, 2}, {4, 3}, {5, 4},
		{6, 5}, {7, 6}, {8, 7}, {9, 8},
	},
}

// DefaultPipeline is used for jobs whose trace record does not name one.
var DefaultPipeline = MGRASTPipeline
