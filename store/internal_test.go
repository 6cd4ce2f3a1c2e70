package store

import (
	"context"
	"fmt"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// --- Config.validate Tests ---

func TestConfigValidate_Defaults(t *testing.T) {
	cfg := Config{}
	cfg.validate()

	d := DefaultConfig()
	if cfg.Table != d.Table {
		t.Errorf("expected default Table, got %q", cfg.Table)
	}
	if cfg.ChunkSize != d.ChunkSize {
		t.Errorf("expected ChunkSize %d, got %d", d.ChunkSize, cfg.ChunkSize)
	}
	if cfg.ScanCap != d.ScanCap {
		t.Errorf("expected ScanCap %d, got %d", d.ScanCap, cfg.ScanCap)
	}
	if cfg.ShortTTL != 24*time.Hour || cfg.LongTTL != 7*24*time.Hour {
		t.Errorf("unexpected TTLs: %v / %v", cfg.ShortTTL, cfg.LongTTL)
	}
	if cfg.OwnerType != "Product" || cfg.OwnerField != "base" {
		t.Errorf("unexpected owner defaults: %q / %q", cfg.OwnerType, cfg.OwnerField)
	}
}

func TestConfigValidate_ScanCapBelowChunk(t *testing.T) {
	cfg := Config{ChunkSize: 50, ScanCap: 10}
	cfg.validate()

	if cfg.ScanCap != DefaultConfig().ScanCap {
		t.Errorf("expected ScanCap reset to default, got %d", cfg.ScanCap)
	}
}

func TestConfigValidate_NegativeMargin(t *testing.T) {
	cfg := Config{RefreshMargin: -time.Second}
	cfg.validate()

	if cfg.RefreshMargin != 0 {
		t.Errorf("expected RefreshMargin 0, got %v", cfg.RefreshMargin)
	}
}

func TestConfigValidate_PreservesCustomValues(t *testing.T) {
	cfg := Config{Table: "custom", ChunkSize: 3, ScanCap: 30, OwnerType: "Item", OwnerField: "template"}
	cfg.validate()

	if cfg.Table != "custom" || cfg.ChunkSize != 3 || cfg.ScanCap != 30 {
		t.Errorf("custom values not preserved: %+v", cfg)
	}
	if cfg.OwnerType != "Item" || cfg.OwnerField != "template" {
		t.Errorf("custom owner not preserved: %+v", cfg)
	}
}

// --- normalizeScalar / SortValue Tests ---

func TestNormalizeScalar(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	tests := []struct {
		in   any
		want any
	}{
		{nil, nil},
		{"a", "a"},
		{true, true},
		{7, int64(7)},
		{int32(-2), int64(-2)},
		{uint8(9), int64(9)},
		{uint64(math.MaxUint64), float64(math.MaxUint64)},
		{uint(math.MaxInt64), int64(math.MaxInt64)},
		{3.0, int64(3)},
		{float32(1.5), 1.5},
		{2.25, 2.25},
		{ts, "2024-05-01T11:00:00Z"},
		{[]int{1}, "[1]"},
	}
	for _, tt := range tests {
		if got := normalizeScalar(tt.in); got != tt.want {
			t.Errorf("normalizeScalar(%#v) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestSortValue_Ordering(t *testing.T) {
	ints := []int64{math.MinInt64, -100, -1, 0, 1, 42, 1 << 40, 1<<53 + 1, math.MaxInt64}
	for i := 1; i < len(ints); i++ {
		if SortValue(ints[i-1]) >= SortValue(ints[i]) {
			t.Errorf("SortValue(%d) should sort before SortValue(%d)", ints[i-1], ints[i])
		}
	}

	// Numbers as they come out of normalizeScalar, integers and floats mixed.
	nums := []any{-1e300, -2.5, -2, -0.5, 0, 0.5, 1, 2.5, 3, 1e10, 1e300}
	for i := 1; i < len(nums); i++ {
		a, b := normalizeScalar(nums[i-1]), normalizeScalar(nums[i])
		if SortValue(a) >= SortValue(b) {
			t.Errorf("SortValue(%v) should sort before SortValue(%v)", a, b)
		}
	}
	if SortValue(normalizeScalar(0.5)) >= SortValue(normalizeScalar(2.5)) {
		t.Error("0.5 should sort before 2.5")
	}

	if SortValue("Beta") <= SortValue("alpha") {
		t.Error("string sort values should be case-insensitive")
	}
	if SortValue(nil) != "" {
		t.Errorf("expected empty sort value for nil, got %q", SortValue(nil))
	}
}

func TestNormalizeIndex(t *testing.T) {
	got := normalizeIndex(map[string][]string{
		"tags":  {"b", "a", "b"},
		"empty": nil,
	})
	if !slices.Equal(got["tags"], []string{"a", "b"}) {
		t.Errorf("expected sorted unique tags, got %v", got["tags"])
	}
	if _, ok := got["empty"]; ok {
		t.Error("expected empty paths to be dropped")
	}
	if normalizeIndex(map[string][]string{"x": {}}) != nil {
		t.Error("expected nil for an index without values")
	}
}

// --- Record Tests ---

func TestRecord_SameContentIgnoresChanged(t *testing.T) {
	a := Record{
		Key:     StoreKey{Kind: "Monster", Name: "goblin"},
		Fields:  map[string]any{"level": int64(3)},
		Index:   map[string][]string{"tags": {"small"}},
		Sort:    "goblin",
		Changed: time.Unix(1, 0),
		Payload: []byte(`{}`),
	}
	b := a.Clone()
	b.Changed = time.Unix(2, 0)
	if !a.SameContent(b) {
		t.Error("records differing only in Changed should have the same content")
	}

	b.Fields["level"] = int64(4)
	if a.SameContent(b) {
		t.Error("expected field change to be detected")
	}
	if a.Fields["level"] != int64(3) {
		t.Error("Clone must not share field maps")
	}

	c := a.Clone()
	c.Key.Name = "Goblin"
	if a.SameContent(c) {
		t.Error("expected key change to be detected")
	}
}

// --- DynamoDB item mapping Tests ---

func TestMarshalRecord_RoundTrip(t *testing.T) {
	parent := StoreKey{Kind: "User", Name: "alice"}
	rec := Record{
		Key:     StoreKey{Kind: "Magic_Item", Name: "wand of sparks", Parent: &parent},
		Fields:  map[string]any{"display name": "Wand", "weight": 1.5, "charges": int64(7), "cursed": false},
		Index:   map[string][]string{"rarity/group": {"rare"}},
		Sort:    "wand",
		Changed: time.Unix(0, 1700000000123456789).UTC(),
		Payload: []byte(`{"x":1}`),
	}

	item, err := marshalRecord(rec)
	if err != nil {
		t.Fatalf("marshalRecord failed: %v", err)
	}
	if _, ok := item[fieldPrefix+"display_name"]; !ok {
		t.Errorf("expected escaped field attribute, got %v", keys(item))
	}
	scope, ok := item[AttrScope].(*types.AttributeValueMemberS)
	if !ok || scope.Value != "User#alice|Magic_Item" {
		t.Errorf("unexpected scope attribute: %#v", item[AttrScope])
	}
	if sort := item[AttrSort].(*types.AttributeValueMemberS); sort.Value != "#wand" {
		t.Errorf("expected prefixed sort value, got %q", sort.Value)
	}

	got, err := unmarshalRecord(item)
	if err != nil {
		t.Fatalf("unmarshalRecord failed: %v", err)
	}
	if !got.SameContent(rec) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, rec)
	}
	if !got.Changed.Equal(rec.Changed) {
		t.Errorf("expected Changed %v, got %v", rec.Changed, got.Changed)
	}
}

func TestMarshalRecord_EmptySort(t *testing.T) {
	item, err := marshalRecord(Record{Key: StoreKey{Kind: "User", Name: "bob"}})
	if err != nil {
		t.Fatalf("marshalRecord failed: %v", err)
	}
	if v := item[AttrSort].(*types.AttributeValueMemberS).Value; v == "" {
		t.Error("sort attribute must never be empty")
	}
	got, err := unmarshalRecord(item)
	if err != nil {
		t.Fatalf("unmarshalRecord failed: %v", err)
	}
	if got.Sort != "" {
		t.Errorf("expected empty sort after round trip, got %q", got.Sort)
	}
	if _, ok := item[AttrScope]; ok {
		t.Error("root records must not carry a scope")
	}
}

func TestUnmarshalRecord_MissingKey(t *testing.T) {
	_, err := unmarshalRecord(map[string]types.AttributeValue{
		AttrKind: &types.AttributeValueMemberS{Value: "User"},
	})
	if err == nil {
		t.Error("expected error for item without key")
	}
}

func TestUnmarshalScalar(t *testing.T) {
	tests := []struct {
		name string
		av   types.AttributeValue
		want any
	}{
		{"string", &types.AttributeValueMemberS{Value: "x"}, "x"},
		{"int", &types.AttributeValueMemberN{Value: "12"}, int64(12)},
		{"integral float", &types.AttributeValueMemberN{Value: "3.0"}, int64(3)},
		{"float", &types.AttributeValueMemberN{Value: "0.5"}, 0.5},
		{"bool", &types.AttributeValueMemberBOOL{Value: true}, true},
		{"null", &types.AttributeValueMemberNULL{Value: true}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := unmarshalScalar(tt.av); got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestBuildQueryInput_IndexSelection(t *testing.T) {
	parent := StoreKey{Kind: "User", Name: "alice"}
	tests := []struct {
		name  string
		q     Query
		index string
		pk    string
	}{
		{"kind sort", Query{Kind: "Monster"}, IndexKindSort, "Monster"},
		{"scope sort", Query{Kind: "Product", Parent: &parent}, IndexScopeSort, "User#alice|Product"},
		{"kind recent", Query{Kind: "Monster", Order: OrderRecent}, IndexKindChanged, "Monster"},
		{"scope recent", Query{Kind: "Product", Parent: &parent, Order: OrderRecent}, IndexScopeChanged, "User#alice|Product"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := buildQueryInput("entries", tt.q, "")
			if *in.IndexName != tt.index {
				t.Errorf("expected index %q, got %q", tt.index, *in.IndexName)
			}
			pk := in.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS)
			if pk.Value != tt.pk {
				t.Errorf("expected pk %q, got %q", tt.pk, pk.Value)
			}
			if forward := *in.ScanIndexForward; forward == (tt.q.Order == OrderRecent) {
				t.Errorf("unexpected ScanIndexForward %v", forward)
			}
		})
	}
}

func TestBuildQueryInput_Filters(t *testing.T) {
	q := Query{
		Kind:    "Monster",
		Limit:   5,
		Filters: []Filter{FieldFilter("hit points", 7), IndexFilter("tags", "small")},
	}
	in := buildQueryInput("entries", q, AttrKey)

	if in.FilterExpression == nil || *in.FilterExpression != "#f0 = :f0 AND contains(#f1, :f1)" {
		t.Errorf("unexpected filter expression: %v", in.FilterExpression)
	}
	if in.ExpressionAttributeNames["#f0"] != "f_hit_points" {
		t.Errorf("unexpected field attribute: %q", in.ExpressionAttributeNames["#f0"])
	}
	if in.ExpressionAttributeNames["#f1"] != "i_tags" {
		t.Errorf("unexpected index attribute: %q", in.ExpressionAttributeNames["#f1"])
	}
	if n, ok := in.ExpressionAttributeValues[":f0"].(*types.AttributeValueMemberN); !ok || n.Value != "7" {
		t.Errorf("expected numeric filter value, got %#v", in.ExpressionAttributeValues[":f0"])
	}
	if in.Limit != nil {
		t.Error("filtered queries must not set a read limit")
	}
	if in.ProjectionExpression == nil || in.ExpressionAttributeNames["#proj"] != AttrKey {
		t.Error("expected key projection")
	}
}

func TestBuildQueryInput_LimitWithoutFilters(t *testing.T) {
	in := buildQueryInput("entries", Query{Kind: "Monster", Offset: 10, Limit: 5}, "")
	if in.Limit == nil || *in.Limit != 15 {
		t.Errorf("expected read limit 15, got %v", in.Limit)
	}
}

func TestBuildScanInput(t *testing.T) {
	in := buildScanInput("entries", "Monster", "", 10)
	if *in.FilterExpression != "#kind = :kind" {
		t.Errorf("unexpected scan filter: %q", *in.FilterExpression)
	}
	if in.ExclusiveStartKey != nil {
		t.Error("first scan must not set a start key")
	}
	if in.Limit == nil || *in.Limit != 10 {
		t.Errorf("expected read limit 10, got %v", in.Limit)
	}
	if *in.TableName != "entries" {
		t.Errorf("unexpected table %q", *in.TableName)
	}
}

func TestBuildScanInput_Cursor(t *testing.T) {
	in := buildScanInput("entries", "Monster", "Monster#g09", 0)
	start, ok := in.ExclusiveStartKey[AttrKey].(*types.AttributeValueMemberS)
	if !ok || start.Value != "Monster#g09" {
		t.Errorf("expected start key Monster#g09, got %v", in.ExclusiveStartKey)
	}
	if in.Limit != nil {
		t.Error("unlimited scans must not set a read limit")
	}
}

// scanClient serves Scan from a fixed item list, honoring Limit and
// ExclusiveStartKey the way DynamoDB pages do.
type scanClient struct {
	DynamoClient
	items []map[string]types.AttributeValue
	calls int
}

func (c *scanClient) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	c.calls++
	start := 0
	if in.ExclusiveStartKey != nil {
		after := in.ExclusiveStartKey[AttrKey].(*types.AttributeValueMemberS).Value
		for start < len(c.items) && c.items[start][AttrKey].(*types.AttributeValueMemberS).Value != after {
			start++
		}
		start = min(start+1, len(c.items))
	}
	end := len(c.items)
	if in.Limit != nil {
		end = min(start+int(*in.Limit), end)
	}
	out := &dynamodb.ScanOutput{Items: c.items[start:end]}
	if end < len(c.items) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{AttrKey: c.items[end-1][AttrKey]}
	}
	return out, nil
}

func newScanBackend(t *testing.T, n int) (*DynamoBackend, *scanClient) {
	t.Helper()
	client := &scanClient{}
	for i := range n {
		item, err := marshalRecord(Record{Key: StoreKey{Kind: "Monster", Name: fmt.Sprintf("m%d", i)}})
		if err != nil {
			t.Fatalf("marshalRecord failed: %v", err)
		}
		client.items = append(client.items, item)
	}
	return NewDynamoBackend(client, NewRegistry("entries")), client
}

func TestDynamoScan_ResumesFromCursor(t *testing.T) {
	d, client := newScanBackend(t, 5)

	var names []string
	cursor := ""
	for {
		recs, next, err := d.Scan(context.Background(), "Monster", cursor, 2)
		if err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		for _, rec := range recs {
			names = append(names, rec.Key.Name)
		}
		if next == "" {
			break
		}
		cursor = next
	}
	if want := []string{"m0", "m1", "m2", "m3", "m4"}; !slices.Equal(names, want) {
		t.Errorf("expected %v, got %v", want, names)
	}
	if client.calls != 3 {
		t.Errorf("expected one read per chunk (3), got %d", client.calls)
	}
}

func TestDynamoScan_Unlimited(t *testing.T) {
	d, client := newScanBackend(t, 3)

	recs, next, err := d.Scan(context.Background(), "Monster", "", 0)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(recs) != 3 || next != "" {
		t.Errorf("expected all 3 records and no cursor, got %d and %q", len(recs), next)
	}
	if client.calls != 1 {
		t.Errorf("expected a single read, got %d", client.calls)
	}
}

func TestCreateTableInput(t *testing.T) {
	in := CreateTableInput("entries")
	if len(in.GlobalSecondaryIndexes) != 4 {
		t.Fatalf("expected 4 indexes, got %d", len(in.GlobalSecondaryIndexes))
	}
	if *in.KeySchema[0].AttributeName != AttrKey {
		t.Errorf("expected hash key %q", AttrKey)
	}
}

func TestFilterString(t *testing.T) {
	got := filterString([]Filter{FieldFilter("level", 3), IndexFilter("tags", "small")})
	if got != "[level=3,tags~small]" {
		t.Errorf("unexpected filter string %q", got)
	}
	if filterString(nil) != "[]" {
		t.Errorf("unexpected empty filter string %q", filterString(nil))
	}
}

func keys(m map[string]types.AttributeValue) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
