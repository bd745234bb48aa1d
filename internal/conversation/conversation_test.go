package conversation

import (
	"fmt"
	"testing"
	"time"

	"golang.org/x/text/language"

	"github.com/chatcart/chatcart/internal/log"
)

func TestHistory_AddAndBound(t *testing.T) {
	t.Parallel()

	h := NewHistory(4)
	for i := range 5 {
		h.Add(fmt.Sprintf("user %d", i), fmt.Sprintf("reply %d", i))
	}

	msgs := h.Messages()
	if len(msgs) != 4 {
		t.Fatalf("Count = %d, want 4 after trimming", len(msgs))
	}
	// Oldest trimmed first: the survivors are the two most recent turns.
	if got := msgs[0].Content[0].Text; got != "user 3" {
		t.Errorf("oldest surviving message = %q, want %q", got, "user 3")
	}
	if got := msgs[3].Content[0].Text; got != "reply 4" {
		t.Errorf("newest message = %q, want %q", got, "reply 4")
	}
}

func TestHistory_MessagesReturnsCopy(t *testing.T) {
	t.Parallel()

	h := NewHistory(0)
	h.Add("hello", "hi")

	msgs := h.Messages()
	msgs[0] = nil
	if h.Messages()[0] == nil {
		t.Error("mutating the returned slice must not affect internal state")
	}
}

func TestHistory_AddMessageIgnoresNil(t *testing.T) {
	t.Parallel()

	h := NewHistory(0)
	h.AddMessage(nil)
	if h.Count() != 0 {
		t.Errorf("Count = %d, want 0", h.Count())
	}
}

func TestDetectLanguage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want language.Tag
	}{
		{"english", "do you have this in blue?", language.English},
		{"empty defaults to english", "", language.English},
		{"chinese", "這個有藍色的嗎", language.Chinese},
		{"japanese hiragana", "これをください", language.Japanese},
		{"japanese mixed kanji kana", "青い財布はありますか", language.Japanese},
		{"korean", "파란색 있나요", language.Korean},
		{"russian", "есть ли синий", language.Russian},
		{"arabic", "هل يوجد أزرق", language.Arabic},
		{"thai", "มีสีน้ำเงินไหม", language.Thai},
		{"mixed latin and chinese", "hi 你好你好你好", language.Chinese},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := DetectLanguage(tt.text); got != tt.want {
				t.Errorf("DetectLanguage(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestDetectEnergy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want Energy
	}{
		{"neutral sentence", "do you have this in blue?", EnergyNeutral},
		{"double exclamation", "I love it!!", EnergyHigh},
		{"emoji", "so cool \U0001F60D", EnergyHigh},
		{"shouting", "WHERE IS MY ORDER", EnergyHigh},
		{"terse", "ok", EnergyLow},
		{"bare ordinal", "2", EnergyLow},
		{"single exclamation", "nice!", EnergyNeutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := DetectEnergy(tt.text); got != tt.want {
				t.Errorf("DetectEnergy(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestStore_LoadOrCreate(t *testing.T) {
	t.Parallel()

	store := NewStore(0, log.NewNop())
	now := time.Now()

	st := store.LoadOrCreate("t1", "c1", now)
	if st.TenantID != "t1" || st.ConversationID != "c1" {
		t.Errorf("unexpected identity: %+v", st)
	}
	if st.Language != language.English {
		t.Errorf("new state language = %v, want English", st.Language)
	}

	again := store.LoadOrCreate("t1", "c1", now.Add(time.Minute))
	if again != st {
		t.Error("LoadOrCreate should return the existing state")
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d, want 1", store.Len())
	}
}

func TestStore_EvictIdle(t *testing.T) {
	t.Parallel()

	store := NewStore(0, log.NewNop())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	stale := store.LoadOrCreate("t1", "stale", base)
	stale.Touch(base)
	fresh := store.LoadOrCreate("t1", "fresh", base)
	fresh.Touch(base.Add(50 * time.Minute))

	evicted := store.EvictIdle(30*time.Minute, base.Add(time.Hour))
	if evicted != 1 {
		t.Fatalf("evicted = %d, want 1", evicted)
	}
	if _, ok := store.Get("stale"); ok {
		t.Error("stale conversation should be gone")
	}
	if _, ok := store.Get("fresh"); !ok {
		t.Error("fresh conversation should remain")
	}
}
