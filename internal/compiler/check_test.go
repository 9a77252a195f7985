package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cognos/internal/ast"
	"github.com/roach88/cognos/internal/parser"
	"github.com/roach88/cognos/internal/schema"
)

func mustParse(t *testing.T, src string) *ast.Program {
	t.Helper()
	prog, err := parser.Parse(src)
	require.NoError(t, err)
	return prog
}

func codes(diags []Diagnostic) []string {
	out := make([]string, len(diags))
	for i, d := range diags {
		out[i] = d.Code
	}
	return out
}

func TestCheckClean(t *testing.T) {
	prog := mustParse(t, `type Verdict: "yes" | "no"

type Answer:
    verdict: Verdict
    reasons?: List[Text]

flow main(q: Text) -> Answer:
    loop:
        break
    parallel:
        branch:
            continue
`)
	assert.Empty(t, Check(prog, nil))
}

func TestCheckDiagnostics(t *testing.T) {
	prog := mustParse(t, `type A: "x" | "x"

type B:
    f: Missing
    f: Text
    g: Map[Text, Int, Int]

type A:
    h: Text

flow main(p: Unknown):
    break
    if true:
        continue
`)
	diags := Check(prog, nil)
	assert.ElementsMatch(t, []string{
		ErrDuplicateType,
		ErrDuplicateVariant,
		ErrUndefinedType, // B.f: Missing
		ErrDuplicateField,
		ErrGenericArity,
		ErrUndefinedType, // main param p
		ErrLoopControl,
		ErrLoopControl,
	}, codes(diags))

	for _, d := range diags {
		if d.Code == ErrLoopControl {
			assert.Equal(t, "flow main", d.Field)
		}
	}
}

func TestCheckExternalTypes(t *testing.T) {
	prog := mustParse(t, "flow main() -> Report:\n    pass\n")

	diags := Check(prog, nil)
	require.Len(t, diags, 1)
	assert.Equal(t, `[E103] line 1: flow main return: undefined type "Report"`, diags[0].Error())

	external := schema.Types{"Report": &schema.Record{Name: "Report"}}
	assert.Empty(t, Check(prog, external))
}

func TestAnalyzeRecursion(t *testing.T) {
	prog := mustParse(t, `flow plan():
    return act()

flow act():
    return invoke("plan", {})

flow retry(n: Int):
    if n > 0:
        return retry(n - 1)

flow leaf():
    return invoke(name, {})
`)
	warnings := AnalyzeRecursion(prog)
	require.Len(t, warnings, 2)

	assert.Equal(t, []string{"act", "plan", "act"}, warnings[0].Path)
	assert.Equal(t, "mutually recursive flows: act → plan → act", warnings[0].Message)
	assert.Equal(t, "warning", warnings[0].Level)

	assert.Equal(t, []string{"retry", "retry"}, warnings[1].Path)
	assert.Equal(t, "flow retry calls itself", warnings[1].Message)
}

func TestAnalyzeRecursionNone(t *testing.T) {
	prog := mustParse(t, "flow a():\n    return b()\n\nflow b():\n    return 1\n")
	assert.Empty(t, AnalyzeRecursion(prog))
	assert.Empty(t, AnalyzeRecursion(&ast.Program{}))
}
