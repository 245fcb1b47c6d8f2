package rank

import (
	"math"
	"testing"

	"github.com/kailas-cloud/jobfed/internal/domain/profile"
	"github.com/kailas-cloud/jobfed/internal/domain/record"
)

func unique(title, desc string) record.Unique {
	return record.Unique{Raw: record.Raw{Title: title, Company: "Acme", Description: desc}}
}

func TestRank_PrimaryWeightDoubled(t *testing.T) {
	p := &profile.Weights{Primary: []profile.Skill{{Name: "python", Weight: 5}}}
	out := New().Rank([]record.Unique{unique("Python Engineer", "")}, p)

	if len(out) != 1 {
		t.Fatalf("expected 1 record, got %d", len(out))
	}
	if out[0].Score != 10 {
		t.Errorf("expected score 10, got %v", out[0].Score)
	}
	if out[0].Breakdown.PrimaryHits != 1 || len(out[0].MatchedSkills) != 1 {
		t.Errorf("unexpected breakdown %+v / %v", out[0].Breakdown, out[0].MatchedSkills)
	}
	// 10 / (2*5 + 1.0)
	if want := 10.0 / 11.0 * 100; math.Abs(out[0].Percentage-want) > 1e-9 {
		t.Errorf("expected percentage %v, got %v", want, out[0].Percentage)
	}
}

func TestRank_EmptySkillsKeepsLength(t *testing.T) {
	in := []record.Unique{unique("a", ""), unique("b", ""), unique("c", "")}
	out := New().Rank(in, &profile.Weights{})

	if len(out) != len(in) {
		t.Fatalf("expected %d records, got %d", len(in), len(out))
	}
	for i, r := range out {
		if r.Percentage != 0 || r.Score != 0 {
			t.Errorf("record %d: expected zero score, got %v / %v", i, r.Score, r.Percentage)
		}
		if r.Title != in[i].Title {
			t.Errorf("expected input order kept, got %q at %d", r.Title, i)
		}
	}
}

func TestRank_NilProfilePassThrough(t *testing.T) {
	in := []record.Unique{unique("first", "python"), unique("second", "")}
	out := New().Rank(in, nil)
	if len(out) != 2 || out[0].Title != "first" || out[0].Score != 0 {
		t.Errorf("unexpected pass-through output %+v", out)
	}
}

func TestRank_SortsDescendingStable(t *testing.T) {
	p := &profile.Weights{
		Primary:   []profile.Skill{{Name: "go", Weight: 3}},
		Secondary: []profile.Skill{{Name: "sql", Weight: 1}},
	}
	in := []record.Unique{
		unique("first", "sql"),
		unique("second", "go and sql"),
		unique("third", "sql only"),
		unique("fourth", "nothing"),
	}
	out := New().Rank(in, p)

	want := []string{"second", "first", "third", "fourth"}
	for i, title := range want {
		if out[i].Title != title {
			t.Fatalf("position %d: expected %q, got %q", i, title, out[i].Title)
		}
	}
	if out[0].Score != 7 {
		t.Errorf("expected 2*3 + 1 = 7, got %v", out[0].Score)
	}
}

func TestRank_Bonuses(t *testing.T) {
	remote := true
	p := &profile.Weights{Location: "berlin", Remote: true, MinSalary: 100000}
	in := []record.Unique{{Raw: record.Raw{
		Title:    "Engineer",
		Company:  "Acme",
		Location: "Berlin, Germany",
		Remote:   &remote,
		Salary:   "100k-120k",
	}}}
	out := New().Rank(in, p)

	b := out[0].Breakdown
	if !b.Location || !b.Remote || !b.Salary {
		t.Fatalf("expected all bonuses, got %+v", b)
	}
	if math.Abs(out[0].Score-1.0) > 1e-9 {
		t.Errorf("expected 1.0, got %v", out[0].Score)
	}
	if math.Abs(out[0].Percentage-100) > 1e-9 {
		t.Errorf("expected 100%%, got %v", out[0].Percentage)
	}
}

func TestRank_SalaryBelowMinimum(t *testing.T) {
	p := &profile.Weights{MinSalary: 150000}
	out := New().Rank([]record.Unique{{Raw: record.Raw{Title: "x", Company: "y", Salary: "$120,000"}}}, p)
	if out[0].Breakdown.Salary {
		t.Error("salary under minimum must not earn the bonus")
	}
}

func TestRank_CustomMatcher(t *testing.T) {
	always := MatcherFunc(func(string, *record.Raw) bool { return true })
	p := &profile.Weights{Secondary: []profile.Skill{{Name: "anything", Weight: 2}}}
	out := New(WithMatcher(always)).Rank([]record.Unique{unique("x", "")}, p)
	if out[0].Score != 2 {
		t.Errorf("expected custom matcher to hit, got %v", out[0].Score)
	}
}
