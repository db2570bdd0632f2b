package simulator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

const (
	// maxCodeNodes bounds the size of one user code line.
	maxCodeNodes = 500
	maxCodeLines = 200
)

// UserCode is operator supplied control logic. Every non-empty line that is
// not a # comment is one expression, evaluated in order once per tick with
// the names env, forecast, device_<id> and the type aliases hs, pm, cu, plb,
// tc and ec bound. Expressions can read device values and call setters such
// as cu.SetOverwrite(60) or hs.SetValue("temperature", 65); they cannot
// reach anything outside the scenario.
type UserCode struct {
	programs []*vm.Program
	lines    []int
}

// UserCodeEnv returns the names bound for a scenario.
func UserCodeEnv(s *Scenario) map[string]any {
	env := map[string]any{
		"env":      s.Env,
		"forecast": s.Env.Forecast,
	}
	for _, d := range s.Devices {
		env["device_"+strconv.Itoa(d.ID())] = d
	}
	// the first device of each type gets the short alias
	for _, d := range s.Devices {
		alias := string(d.Type())
		if _, ok := env[alias]; !ok {
			env[alias] = d
		}
	}
	return env
}

// CompileUserCode parses source against env. An empty source compiles to
// nil.
func CompileUserCode(source string, env map[string]any) (*UserCode, error) {
	if strings.TrimSpace(source) == "" {
		return nil, nil
	}

	uc := &UserCode{}
	for i, line := range strings.Split(source, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if len(uc.programs) == maxCodeLines {
			return nil, fmt.Errorf("user code exceeds %d lines", maxCodeLines)
		}
		p, err := expr.Compile(line, expr.Env(env), expr.MaxNodes(maxCodeNodes))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		uc.programs = append(uc.programs, p)
		uc.lines = append(uc.lines, i+1)
	}
	return uc, nil
}

// Run evaluates every line. The first failing line aborts the run.
func (uc *UserCode) Run(env map[string]any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("user code panic: %v", r)
		}
	}()

	env["forecast"] = false
	if e, ok := env["env"].(*Environment); ok {
		env["forecast"] = e.Forecast
	}
	for i, p := range uc.programs {
		if _, err := expr.Run(p, env); err != nil {
			return fmt.Errorf("line %d: %w", uc.lines[i], err)
		}
	}
	return nil
}
