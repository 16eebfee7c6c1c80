package stdio

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestPendingTableResolveRestoresOriginalID(t *testing.T) {
	pt := newPendingTable()
	internalID, call := pt.register(json.RawMessage(`"abc"`))

	if !pt.resolve(internalID, []byte(`{"jsonrpc":"2.0","id":1,"result":{}}`)) {
		t.Fatal("resolve reported no matching call")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	raw, err := pt.wait(ctx, internalID, call)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}

	var decoded struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(decoded.ID) != `"abc"` {
		t.Errorf("id = %s, want %q", decoded.ID, `"abc"`)
	}
}

func TestPendingTableResolveUnknownIDReportsFalse(t *testing.T) {
	pt := newPendingTable()
	if pt.resolve(999, []byte(`{}`)) {
		t.Error("resolve on unknown id should report false")
	}
}

func TestPendingTableWaitDeregistersOnCancel(t *testing.T) {
	pt := newPendingTable()
	internalID, call := pt.register(json.RawMessage(`1`))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := pt.wait(ctx, internalID, call); err == nil {
		t.Fatal("expected context error")
	}
	if pt.resolve(internalID, []byte(`{}`)) {
		t.Error("resolve should report false after deregistration")
	}
}

func TestPendingTableFailAllCarriesEachOriginalID(t *testing.T) {
	pt := newPendingTable()
	id1, call1 := pt.register(json.RawMessage(`1`))
	id2, call2 := pt.register(json.RawMessage(`2`))

	pt.failAll(func(originalID json.RawMessage) []byte {
		return []byte(`{"jsonrpc":"2.0","id":` + string(originalID) + `,"error":{"code":-32000,"message":"down"}}`)
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	raw1, err := pt.wait(ctx, id1, call1)
	if err != nil {
		t.Fatalf("wait 1: %v", err)
	}
	if got := string(raw1); got != `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"down"}}` {
		t.Errorf("raw1 = %s", got)
	}

	raw2, err := pt.wait(ctx, id2, call2)
	if err != nil {
		t.Fatalf("wait 2: %v", err)
	}
	if got := string(raw2); got != `{"jsonrpc":"2.0","id":2,"error":{"code":-32000,"message":"down"}}` {
		t.Errorf("raw2 = %s", got)
	}
}
