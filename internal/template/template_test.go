package template

import "testing"

func TestResolve_SimpleField(t *testing.T) {
	outputs := Outputs{"step1": {"name": "Alice"}}
	got := Resolve("Hello {step1.name}!", outputs)
	if got != "Hello Alice!" {
		t.Errorf("Resolve() = %q, want %q", got, "Hello Alice!")
	}
}

func TestResolve_NestedField(t *testing.T) {
	outputs := Outputs{"step1": {"result": map[string]any{"count": 3}}}
	got := Resolve("count={step1.result.count}", outputs)
	if got != "count=3" {
		t.Errorf("Resolve() = %q, want %q", got, "count=3")
	}
}

func TestResolve_UnknownStepLeftUntouched(t *testing.T) {
	outputs := Outputs{}
	got := Resolve("{missing.field}", outputs)
	if got != "{missing.field}" {
		t.Errorf("Resolve() = %q, want unresolved ref preserved", got)
	}
}

func TestResolve_UnknownFieldLeftUntouched(t *testing.T) {
	outputs := Outputs{"step1": {"name": "Alice"}}
	got := Resolve("{step1.age}", outputs)
	if got != "{step1.age}" {
		t.Errorf("Resolve() = %q, want unresolved ref preserved", got)
	}
}

func TestResolve_MultipleReferences(t *testing.T) {
	outputs := Outputs{
		"a": {"x": "1"},
		"b": {"y": "2"},
	}
	got := Resolve("{a.x}-{b.y}", outputs)
	if got != "1-2" {
		t.Errorf("Resolve() = %q, want %q", got, "1-2")
	}
}

func TestReferences(t *testing.T) {
	refs := References("{a.x} and {b.y} and {a.z}")
	if len(refs) != 2 || refs[0] != "a" || refs[1] != "b" {
		t.Errorf("References() = %v, want [a b]", refs)
	}
}

func TestCheckRefs_UnknownStepIsError(t *testing.T) {
	exists := func(id string) bool { return id == "a" }
	_, err := CheckRefs("see {ghost.output}", "b", nil, exists)
	if err == nil {
		t.Fatal("CheckRefs() expected error for reference to nonexistent step")
	}
}

func TestCheckRefs_NonDependencyIsWarning(t *testing.T) {
	exists := func(id string) bool { return id == "a" || id == "b" }
	warnings, err := CheckRefs("see {a.output}", "b", nil, exists)
	if err != nil {
		t.Fatalf("CheckRefs() error = %v", err)
	}
	if len(warnings) != 1 || warnings[0].StepID != "b" || warnings[0].Ref != "a" {
		t.Errorf("CheckRefs() warnings = %v, want one b->a warning", warnings)
	}
	if warnings[0].String() == "" {
		t.Error("Warning.String() should describe the reference")
	}
}

func TestCheckRefs_DeclaredDepAndSelfAreClean(t *testing.T) {
	exists := func(id string) bool { return id == "a" || id == "b" }
	warnings, err := CheckRefs("see {a.output} and {b.error}", "b", []string{"a"}, exists)
	if err != nil {
		t.Fatalf("CheckRefs() error = %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("CheckRefs() warnings = %v, want none", warnings)
	}
}
