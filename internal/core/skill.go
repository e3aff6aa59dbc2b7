package core

// SkillScope is where a skill is catalogued.
type SkillScope string

const (
	SkillScopePersonal SkillScope = "personal"
	SkillScopeProject  SkillScope = "project"
)

// SkillStatus is the resolution state stamped onto skill nodes.
type SkillStatus string

const (
	SkillStatusValid      SkillStatus = "valid"
	SkillStatusMissing    SkillStatus = "missing"
	SkillStatusUnresolved SkillStatus = "unresolved"
)

// SkillReference is a read-only catalogue entry.
type SkillReference struct {
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description" yaml:"description"`
	Scope       SkillScope  `json:"scope" yaml:"-"`
	Path        string      `json:"path" yaml:"-"`
	Status      SkillStatus `json:"status" yaml:"-"`
}

// SkillCatalogue groups skills by scope.
type SkillCatalogue struct {
	Personal []SkillReference `json:"personal"`
	Project  []SkillReference `json:"project"`
}

// All returns every skill, personal first then project. This is the
// catalogue order used for tie-breaking.
func (c SkillCatalogue) All() []SkillReference {
	out := make([]SkillReference, 0, len(c.Personal)+len(c.Project))
	out = append(out, c.Personal...)
	out = append(out, c.Project...)
	return out
}

// Len returns the number of catalogued skills.
func (c SkillCatalogue) Len() int {
	return len(c.Personal) + len(c.Project)
}

// Lookup finds a skill by exact name and scope. An empty scope searches
// project skills first, then personal ones.
func (c SkillCatalogue) Lookup(name string, scope SkillScope) (SkillReference, bool) {
	switch scope {
	case SkillScopeProject:
		return findSkill(c.Project, name)
	case SkillScopePersonal:
		return findSkill(c.Personal, name)
	case "":
		if ref, ok := findSkill(c.Project, name); ok {
			return ref, true
		}
		return findSkill(c.Personal, name)
	default:
		return SkillReference{}, false
	}
}

func findSkill(list []SkillReference, name string) (SkillReference, bool) {
	for _, ref := range list {
		if ref.Name == name {
			return ref, true
		}
	}
	return SkillReference{}, false
}
