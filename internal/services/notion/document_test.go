package notion_test

import (
	"encoding/json"
	"testing"

	"billsync/internal/services/notion"
)

const samplePage = `{
  "id": "page-1",
  "created_time": "2025-01-05T09:00:00.000Z",
  "properties": {
    "案件名": {"type": "title", "title": [{"plain_text": "新人"}, {"plain_text": "研修"}]},
    "ステータス": {"type": "status", "status": {"name": "完了"}},
    "開始": {"type": "date", "date": {"start": "2025-01-10"}},
    "金額": {"type": "number", "number": 200000},
    "顧客名": {"type": "relation", "relation": [{"id": "cust-9"}]},
    "研修形式": {"type": "select", "select": {"name": "オンライン"}},
    "備考": {"type": "rich_text", "rich_text": [{"plain_text": "  持ち込みPC  "}]},
    "請求済み": {"type": "checkbox", "checkbox": false},
    "novel_property": {"type": "rollup"}
  }
}`

func decodeSample(t *testing.T) notion.Document {
	t.Helper()
	var doc notion.Document
	if err := json.Unmarshal([]byte(samplePage), &doc); err != nil {
		t.Fatalf("decode sample: %v", err)
	}
	return doc
}

func TestDocumentExtractors(t *testing.T) {
	doc := decodeSample(t)

	if title, ok := doc.Title("案件名"); !ok || title != "新人研修" {
		t.Errorf("Title = %q %v", title, ok)
	}
	if status, ok := doc.Status("ステータス"); !ok || status != "完了" {
		t.Errorf("Status = %q %v", status, ok)
	}
	if start, ok := doc.Date("開始"); !ok || start.Format("2006-01-02") != "2025-01-10" {
		t.Errorf("Date = %v %v", start, ok)
	}
	if amount, ok := doc.Number("金額"); !ok || amount != 200000 {
		t.Errorf("Number = %v %v", amount, ok)
	}
	if rel, ok := doc.Relation("顧客名"); !ok || rel != "cust-9" {
		t.Errorf("Relation = %q %v", rel, ok)
	}
	if format, ok := doc.Select("研修形式"); !ok || format != "オンライン" {
		t.Errorf("Select = %q %v", format, ok)
	}
	if notes, ok := doc.Text("備考"); !ok || notes != "持ち込みPC" {
		t.Errorf("Text = %q %v", notes, ok)
	}
	if invoiced, ok := doc.Checkbox("請求済み"); !ok || invoiced {
		t.Errorf("Checkbox = %v %v", invoiced, ok)
	}
}

func TestDocumentMissingAndMistypedProperties(t *testing.T) {
	doc := decodeSample(t)

	if _, ok := doc.Number("存在しない"); ok {
		t.Error("missing property should not resolve")
	}
	// A property of the wrong type must not satisfy an extractor.
	if _, ok := doc.Title("金額"); ok {
		t.Error("number property should not resolve as title")
	}
	// Unknown property types decode without error and stay inert.
	if _, ok := doc.Text("novel_property"); ok {
		t.Error("unknown property type should be ignored")
	}
}
