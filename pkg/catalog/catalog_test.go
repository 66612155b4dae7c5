package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/japaniel/hanzivid/pkg/domain"
)

const sampleCEDICT = `# CC-CEDICT
# comment lines are ignored
你 你 [ni3] /you (informal)/
你好 你好 [ni3 hao3] /hello/hi/
學習 学习 [xue2 xi2] /to study/to learn/
學 学 [xue2] /to learn/to study/
中文 中文 [Zhong1 wen2] /Chinese language/
愛 爱 [ai4] /to love/
我 我 [wo3] /I/me/my/
乾 干 [gan1] /dry/
乾 乾 [qian2] /surname Qian/
this line is broken
電腦 电脑 [dian4 nao3] /computer/
`

func TestParseCEDICT(t *testing.T) {
	entries, stats, err := ParseCEDICT(strings.NewReader(sampleCEDICT))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(entries) != 10 {
		t.Fatalf("expected 10 entries, got %d", len(entries))
	}
	if stats.Skipped != 1 {
		t.Errorf("expected 1 skipped line, got %d", stats.Skipped)
	}
	e := entries[2]
	if e.Traditional != "學習" || e.Simplified != "学习" || e.Pinyin != "xue2 xi2" {
		t.Errorf("unexpected entry: %+v", e)
	}
	if len(e.Definitions) != 2 || e.Definitions[1] != "to learn" {
		t.Errorf("unexpected definitions: %v", e.Definitions)
	}
}

func buildSample(t *testing.T, levels []LevelEntry) *Catalog {
	t.Helper()
	dict, _, err := ParseCEDICT(strings.NewReader(sampleCEDICT))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return Build(levels, dict, nil)
}

func TestBuildMergesLevelsAndDefinitions(t *testing.T) {
	cat := buildSample(t, []LevelEntry{
		{Word: "你", Level: 1},
		{Word: "你好", Level: 1},
		{Word: "学习", Level: 1},
		{Word: "电脑", Level: 1},
		{Word: "熊猫", Level: 4}, // not in the dictionary
	})

	e, ok := cat.Lookup("学习")
	if !ok {
		t.Fatal("expected 学习 in catalog")
	}
	if e.Level != 1 || e.Pinyin != "xue2 xi2" || e.Traditional != "學習" {
		t.Errorf("unexpected entry: %+v", e)
	}
	if e.Gloss != "to study; to learn" {
		t.Errorf("unexpected gloss: %q", e.Gloss)
	}

	panda, ok := cat.Lookup("熊猫")
	if !ok || panda.Level != 4 || panda.Pinyin != "" {
		t.Errorf("expected level-only entry for 熊猫, got %+v (ok=%v)", panda, ok)
	}

	zw, ok := cat.Lookup("中文")
	if !ok || zw.Level != domain.Unranked {
		t.Errorf("expected unranked 中文, got %+v", zw)
	}
}

func TestBuildLevelConflictKeepsLowest(t *testing.T) {
	cat := buildSample(t, []LevelEntry{
		{Word: "学习", Level: 3},
		{Word: "学习", Level: 1},
		{Word: "學習", Level: 2}, // traditional form folds onto the same word
	})
	e, _ := cat.Lookup("学习")
	if e.Level != 1 {
		t.Errorf("expected lowest level 1, got %d", e.Level)
	}
	if got := cat.Stats().LevelConflicts; got != 2 {
		t.Errorf("expected 2 conflicts, got %d", got)
	}
}

func TestNormalizeFoldsVariants(t *testing.T) {
	cat := buildSample(t, nil)

	tests := []struct {
		in, want string
	}{
		{"學習", "学习"},
		{"电脑", "电脑"},
		{"電腦", "电脑"},
		{"愛", "爱"},
		{"學", "学"},
		{"乾", "乾"}, // 乾 is a headword of its own, never folded away
		{" 你好 ", "你好"},
		{"ＡＢＣ", "ABC"}, // full-width to ASCII
	}
	for _, tt := range tests {
		if got := cat.Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q; want %q", tt.in, got, tt.want)
		}
		if again := cat.Normalize(cat.Normalize(tt.in)); again != tt.want {
			t.Errorf("Normalize not idempotent for %q: %q", tt.in, again)
		}
	}
}

func TestFromEntriesRoundTrip(t *testing.T) {
	orig := buildSample(t, []LevelEntry{{Word: "学习", Level: 1}})
	rebuilt := FromEntries(orig.Entries(), nil)

	if rebuilt.Len() != orig.Len() {
		t.Fatalf("expected %d entries, got %d", orig.Len(), rebuilt.Len())
	}
	if got := rebuilt.Normalize("學習"); got != "学习" {
		t.Errorf("expected variant folding after rebuild, got %q", got)
	}
	a, _ := orig.Lookup("学习")
	b, _ := rebuilt.Lookup("学习")
	if a != b {
		t.Errorf("entry changed across rebuild: %+v vs %+v", a, b)
	}
}

func TestMaxWordLen(t *testing.T) {
	cat := buildSample(t, []LevelEntry{{Word: "对不起", Level: 1}})
	if cat.MaxWordLen() != 3 {
		t.Errorf("expected max word length 3, got %d", cat.MaxWordLen())
	}
}

func TestLoadFromFiles(t *testing.T) {
	dir := t.TempDir()
	hsk := filepath.Join(dir, "hsk.json")
	ced := filepath.Join(dir, "cedict.txt")
	if err := os.WriteFile(hsk, []byte(`{"学习": 1, "中文": "1", "bad": "x"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(ced, []byte(sampleCEDICT), 0o644); err != nil {
		t.Fatal(err)
	}

	cat, err := Load(context.Background(), Sources{HSKPath: hsk, CEDICTPath: ced}, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if e, ok := cat.Entry("中文"); !ok || e.Level != 1 {
		t.Errorf("expected 中文 at level 1, got %+v", e)
	}

	if _, err := Load(context.Background(), Sources{HSKPath: filepath.Join(dir, "missing.json")}, nil); err == nil {
		t.Error("expected error for missing file")
	}
}
