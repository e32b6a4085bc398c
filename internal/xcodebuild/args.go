// Package xcodebuild wraps invocation of the external xcodebuild tool:
// argument translation, line-streamed execution, and toolchain probing.
package xcodebuild

// BuildParams describes one build invocation.
type BuildParams struct {
	Project         string
	Workspace       string
	Scheme          string
	Configuration   string
	Destination     string
	DerivedDataPath string
	ExtraArgs       []string
}

// Args translates the params into an xcodebuild argument list. The mapping is
// pure: argument order is fixed and ExtraArgs are forwarded verbatim at the end.
func (p BuildParams) Args() []string {
	var args []string

	if p.Project != "" {
		args = append(args, "-project", p.Project)
	}
	if p.Workspace != "" {
		args = append(args, "-workspace", p.Workspace)
	}

	args = append(args, "-scheme", p.Scheme)
	args = append(args, "-configuration", p.Configuration)

	if p.Destination != "" {
		args = append(args, "-destination", p.Destination)
	}
	if p.DerivedDataPath != "" {
		args = append(args, "-derivedDataPath", p.DerivedDataPath)
	}

	return append(args, p.ExtraArgs...)
}

// TestParams describes one test invocation.
type TestParams struct {
	Project     string
	Workspace   string
	Scheme      string
	Destination string
	TestPlan    string
	OnlyTesting []string
	SkipTesting []string
}

// Args translates the params into an `xcodebuild test` argument list,
// preserving the order of the test-selection filters.
func (p TestParams) Args() []string {
	args := []string{"test"}

	if p.Project != "" {
		args = append(args, "-project", p.Project)
	}
	if p.Workspace != "" {
		args = append(args, "-workspace", p.Workspace)
	}

	args = append(args, "-scheme", p.Scheme)

	if p.Destination != "" {
		args = append(args, "-destination", p.Destination)
	}
	if p.TestPlan != "" {
		args = append(args, "-testPlan", p.TestPlan)
	}

	for _, t := range p.OnlyTesting {
		args = append(args, "-only-testing", t)
	}
	for _, t := range p.SkipTesting {
		args = append(args, "-skip-testing", t)
	}

	return args
}
