package core

import "testing"

func TestSkillCatalogue_AllOrder(t *testing.T) {
	cat := SkillCatalogue{
		Personal: []SkillReference{{Name: "p1", Scope: SkillScopePersonal}},
		Project:  []SkillReference{{Name: "j1", Scope: SkillScopeProject}},
	}
	all := cat.All()
	if len(all) != 2 || all[0].Name != "p1" || all[1].Name != "j1" {
		t.Fatalf("All() = %+v, want personal then project", all)
	}
	if cat.Len() != 2 {
		t.Errorf("Len() = %d, want 2", cat.Len())
	}
}

func TestSkillCatalogue_Lookup(t *testing.T) {
	cat := SkillCatalogue{
		Personal: []SkillReference{{Name: "deploy", Scope: SkillScopePersonal, Path: "/home/deploy"}},
		Project:  []SkillReference{{Name: "deploy", Scope: SkillScopeProject, Path: "/repo/deploy"}},
	}

	tests := []struct {
		name     string
		skill    string
		scope    SkillScope
		wantOK   bool
		wantPath string
	}{
		{"personal exact", "deploy", SkillScopePersonal, true, "/home/deploy"},
		{"project exact", "deploy", SkillScopeProject, true, "/repo/deploy"},
		{"empty scope prefers project", "deploy", "", true, "/repo/deploy"},
		{"unknown name", "lint", SkillScopeProject, false, ""},
		{"unknown scope", "deploy", "global", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, ok := cat.Lookup(tt.skill, tt.scope)
			if ok != tt.wantOK {
				t.Fatalf("Lookup() ok = %v, want %v", ok, tt.wantOK)
			}
			if ref.Path != tt.wantPath {
				t.Errorf("Lookup() path = %q, want %q", ref.Path, tt.wantPath)
			}
		})
	}
}
