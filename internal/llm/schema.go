package llm

// Node is a minimal JSON Schema node, enough to express the strict
// structured-output contract: closed objects, explicit required lists, and
// nullable scalars via the ["type","null"] marker.
type Node struct {
	Type                 any             `json:"type"`
	AdditionalProperties *bool           `json:"additionalProperties,omitempty"`
	Required             []string        `json:"required,omitempty"`
	Properties           map[string]Node `json:"properties,omitempty"`
	Items                *Node           `json:"items,omitempty"`
}

var closed = false

func object(required []string, props map[string]Node) Node {
	return Node{
		Type:                 "object",
		AdditionalProperties: &closed,
		Required:             required,
		Properties:           props,
	}
}

func nullable(typ string) Node {
	return Node{Type: []string{typ, "null"}}
}

// InvoiceSchema returns the full JSON schema for the structured extraction
// response. Every object level disallows unlisted properties; every scalar
// the service may fail to read is explicitly nullable. Line item core fields
// and confidence scores are required and non-null.
func InvoiceSchema() Node {
	party := object(
		[]string{"name", "address", "tax_id"},
		map[string]Node{
			"name":    nullable("string"),
			"address": nullable("string"),
			"tax_id":  nullable("string"),
		},
	)

	lineItem := object(
		[]string{"description", "quantity", "unit_price", "amount", "tax"},
		map[string]Node{
			"description": {Type: "string"},
			"quantity":    {Type: "number"},
			"unit_price":  {Type: "number"},
			"amount":      {Type: "number"},
			"tax":         nullable("number"),
		},
	)

	return object(
		[]string{"vendor", "customer", "metadata", "totals", "line_items", "confidence"},
		map[string]Node{
			"vendor":   party,
			"customer": party,
			"metadata": object(
				[]string{"invoice_number", "invoice_date", "due_date", "currency"},
				map[string]Node{
					"invoice_number": nullable("string"),
					"invoice_date":   nullable("string"),
					"due_date":       nullable("string"),
					"currency":       nullable("string"),
				},
			),
			"totals": object(
				[]string{"subtotal", "tax_amount", "total"},
				map[string]Node{
					"subtotal":   nullable("number"),
					"tax_amount": nullable("number"),
					"total":      nullable("number"),
				},
			),
			"line_items": {Type: "array", Items: &lineItem},
			"confidence": object(
				[]string{"vendor", "customer", "metadata", "totals", "line_items"},
				map[string]Node{
					"vendor":     {Type: "integer"},
					"customer":   {Type: "integer"},
					"metadata":   {Type: "integer"},
					"totals":     {Type: "integer"},
					"line_items": {Type: "integer"},
				},
			),
		},
	)
}
