package worker

import (
	"ticketing/internal/duplicate"
	"ticketing/internal/vision"

	sdk "github.com/yaniaici/loyalty-go-sdk"
)

// processingResult is the worker's in-progress view of a ticket's
// processing_result column, matching the shape spec.md §6 documents:
// {fecha, hora, tienda, total, tipo_ticket, productos, num_productos,
// procesado_correctamente, es_tienda_mercado, ticket_status,
// status_message, duplicate_detected?, error?}.
type processingResult struct {
	Fecha                  *string           `json:"fecha"`
	Hora                   *string           `json:"hora"`
	Tienda                 *string           `json:"tienda"`
	Total                  *float64          `json:"total"`
	TipoTicket             *string           `json:"tipo_ticket"`
	Productos              []vision.Product  `json:"productos"`
	NumProductos           int               `json:"num_productos"`
	ProcesadoCorrectamente bool              `json:"procesado_correctamente"`
	EsTiendaMercado        bool              `json:"es_tienda_mercado"`
	TicketStatus           string            `json:"ticket_status"`
	StatusMessage          string            `json:"status_message"`
	DuplicateDetected      *bool             `json:"duplicate_detected,omitempty"`
}

func boolPtr(b bool) *bool { return &b }

// buildResult derives procesado_correctamente from the presence of
// the structural fields a valid ticket needs (spec.md §4.6 step d).
func buildResult(ext *vision.Extraction) *processingResult {
	r := &processingResult{
		Fecha:        ext.Fecha,
		Hora:         ext.Hora,
		Tienda:       ext.Tienda,
		Total:        ext.Total,
		TipoTicket:   ext.TipoTicket,
		Productos:    ext.Productos,
		NumProductos: len(ext.Productos),
	}
	r.ProcesadoCorrectamente = ext.Tienda != nil && *ext.Tienda != "" &&
		ext.Total != nil && len(ext.Productos) > 0
	return r
}

func (r *processingResult) total() float64 {
	if r.Total == nil {
		return 0
	}
	return *r.Total
}

func (r *processingResult) sdkProducts() []sdk.PurchaseProduct {
	out := make([]sdk.PurchaseProduct, 0, len(r.Productos))
	for _, p := range r.Productos {
		out = append(out, sdk.PurchaseProduct{Name: p.Nombre, Quantity: p.Cantidad, Price: p.Precio})
	}
	return out
}

func (r *processingResult) toMap() map[string]any {
	m := map[string]any{
		"fecha":                    r.Fecha,
		"hora":                     r.Hora,
		"tienda":                   r.Tienda,
		"total":                    r.Total,
		"tipo_ticket":              r.TipoTicket,
		"productos":                r.Productos,
		"num_productos":            r.NumProductos,
		"procesado_correctamente":  r.ProcesadoCorrectamente,
		"es_tienda_mercado":        r.EsTiendaMercado,
		"ticket_status":            r.TicketStatus,
		"status_message":           r.StatusMessage,
	}
	if r.DuplicateDetected != nil {
		m["duplicate_detected"] = *r.DuplicateDetected
	}
	return m
}

func storeName(ext *vision.Extraction) string {
	if ext == nil || ext.Tienda == nil {
		return ""
	}
	return *ext.Tienda
}

// fromResult adapts a processingResult back into a vision.Extraction
// shape for the storeName/total helpers shared with the fan-out path.
func fromResult(r *processingResult) *vision.Extraction {
	return &vision.Extraction{Tienda: r.Tienda, Total: r.Total}
}

// toCandidate reduces a fresh extraction to C7's comparison shape.
func toCandidate(ext *vision.Extraction) duplicate.Candidate {
	c := duplicate.Candidate{Products: make([]duplicate.Product, 0, len(ext.Productos))}
	if ext.Tienda != nil {
		c.StoreName = *ext.Tienda
	}
	if ext.Total != nil {
		c.Total = *ext.Total
	}
	if ext.Fecha != nil {
		raw := *ext.Fecha
		if ext.Hora != nil && *ext.Hora != "" {
			raw = raw + " " + *ext.Hora
		}
		c.PurchaseTime = duplicate.ParseDate(raw)
	}
	for _, p := range ext.Productos {
		c.Products = append(c.Products, duplicate.Product{Name: p.Nombre, Quantity: p.Cantidad})
	}
	return c
}

// candidateFromStoredResult reduces a previously persisted
// processing_result map back to C7's comparison shape.
func candidateFromStoredResult(stored map[string]any) duplicate.Candidate {
	c := duplicate.Candidate{}
	if v, ok := stored["tienda"].(string); ok {
		c.StoreName = v
	}
	if v, ok := stored["total"].(float64); ok {
		c.Total = v
	}
	fecha, _ := stored["fecha"].(string)
	hora, _ := stored["hora"].(string)
	if fecha != "" {
		raw := fecha
		if hora != "" {
			raw = raw + " " + hora
		}
		c.PurchaseTime = duplicate.ParseDate(raw)
	}
	if products, ok := stored["productos"].([]any); ok {
		for _, item := range products {
			if m, ok := item.(map[string]any); ok {
				name, _ := m["nombre"].(string)
				qty, _ := m["cantidad"].(float64)
				c.Products = append(c.Products, duplicate.Product{Name: name, Quantity: qty})
			}
		}
	}
	return c
}
