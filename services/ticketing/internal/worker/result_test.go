package worker

import (
	"testing"

	"ticketing/internal/vision"
)

func strPtr(s string) *string { return &s }
func f64Ptr(f float64) *float64 { return &f }

func TestBuildResult_ProcesadoCorrectamente(t *testing.T) {
	cases := []struct {
		name string
		ext  *vision.Extraction
		want bool
	}{
		{
			name: "complete extraction",
			ext: &vision.Extraction{
				Tienda:    strPtr("Mercadona"),
				Total:     f64Ptr(10),
				Productos: []vision.Product{{Nombre: "Pan", Cantidad: 1, Precio: 1.2}},
			},
			want: true,
		},
		{
			name: "missing store",
			ext:  &vision.Extraction{Total: f64Ptr(10), Productos: []vision.Product{{Nombre: "Pan", Cantidad: 1}}},
			want: false,
		},
		{
			name: "missing total",
			ext:  &vision.Extraction{Tienda: strPtr("Mercadona"), Productos: []vision.Product{{Nombre: "Pan", Cantidad: 1}}},
			want: false,
		},
		{
			name: "no products",
			ext:  &vision.Extraction{Tienda: strPtr("Mercadona"), Total: f64Ptr(10)},
			want: false,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := buildResult(c.ext)
			if got.ProcesadoCorrectamente != c.want {
				t.Errorf("ProcesadoCorrectamente = %v, want %v", got.ProcesadoCorrectamente, c.want)
			}
		})
	}
}

func TestToCandidate_CombinesDateAndTime(t *testing.T) {
	ext := &vision.Extraction{
		Tienda: strPtr("Mercadona"),
		Total:  f64Ptr(42.5),
		Fecha:  strPtr("15/03/2024"),
		Hora:   strPtr("14:30"),
		Productos: []vision.Product{
			{Nombre: "Leche", Cantidad: 2},
		},
	}
	c := toCandidate(ext)
	if c.PurchaseTime.IsZero() {
		t.Fatal("expected a parsed purchase time")
	}
	if c.StoreName != "Mercadona" || c.Total != 42.5 {
		t.Errorf("unexpected candidate: %+v", c)
	}
	if len(c.Products) != 1 || c.Products[0].Name != "Leche" {
		t.Errorf("unexpected products: %+v", c.Products)
	}
}
