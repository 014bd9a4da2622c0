package browser

import (
	"strings"
	"testing"

	"github.com/go-rod/rod/lib/proto"
)

func TestBlockedTypes(t *testing.T) {
	got := blockedTypes([]string{"images", " Fonts ", "media", "stylesheet", "ping"})
	for _, want := range []proto.NetworkResourceType{
		proto.NetworkResourceTypeImage,
		proto.NetworkResourceTypeFont,
		proto.NetworkResourceTypeMedia,
		proto.NetworkResourceTypeStylesheet,
		proto.NetworkResourceTypePing,
	} {
		if !got[want] {
			t.Errorf("%s not blocked", want)
		}
	}
	if got[proto.NetworkResourceTypeDocument] || got[proto.NetworkResourceTypeXHR] {
		t.Error("document or xhr blocked")
	}
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.defaults()
	if c.Mode != ModeHeadless || c.XvfbDisplay != ":99" || c.MemoryLimit != 1<<30 {
		t.Fatalf("got %+v", c)
	}
}

func TestEmbeddedScripts(t *testing.T) {
	if !strings.Contains(collectJS, "__autoconfirm_refs") || !strings.Contains(resolveJS, "__autoconfirm_refs") {
		t.Fatal("collector and resolver must share the ref registry")
	}
}
