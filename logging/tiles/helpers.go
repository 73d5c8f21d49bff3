package tiles

import (
	"context"
	"strconv"

	"github.com/david-fong/capswalk-sub001/logging"
)

const (
	// EventTreeBuilt is emitted once a language tree passes validation.
	EventTreeBuilt logging.EventType = "tiles.tree_built"
	// EventReshuffled is emitted when a tile receives a new pair.
	EventReshuffled logging.EventType = "tiles.reshuffled"
)

// TreeBuiltPayload describes a freshly built tree.
type TreeBuiltPayload struct {
	Pack      string `json:"pack"`
	Leaves    int    `json:"leaves"`
	Threshold int    `json:"threshold"`
	Scheme    string `json:"scheme"`
}

// ReshuffledPayload captures the pair written to a tile.
type ReshuffledPayload struct {
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Char    string `json:"char"`
	Seq     string `json:"seq"`
	Avoided int    `json:"avoided"`
}

// TreeBuilt publishes a tree construction event.
func TreeBuilt(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload TreeBuiltPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTreeBuilt,
		Seq:      seq,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLang,
		Payload:  payload,
		Extra:    extra,
	})
}

// Reshuffled publishes a tile reassignment at debug severity.
func Reshuffled(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload ReshuffledPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventReshuffled,
		Seq:      seq,
		Actor:    actor,
		Targets:  []logging.EntityRef{{ID: tileID(payload.X, payload.Y), Kind: logging.EntityKindTile}},
		Severity: logging.SeverityDebug,
		Category: logging.CategoryLang,
		Payload:  payload,
		Extra:    extra,
	})
}

func tileID(x, y int) string {
	return strconv.Itoa(x) + "," + strconv.Itoa(y)
}
