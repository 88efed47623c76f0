package landfall

// Terrain is the oracle answering elevation queries for the landing body.
// Altitudes are meters above the datum; coordinates are degrees.
type Terrain interface {
	Altitude(lat, lon float64) float64
	IsWater(lat, lon float64) bool
}

// FlatTerrain is a terrain oracle with a constant elevation and no water.
type FlatTerrain float64

// Altitude implements the Terrain interface.
func (t FlatTerrain) Altitude(lat, lon float64) float64 {
	return float64(t)
}

// IsWater implements the Terrain interface.
func (t FlatTerrain) IsWater(lat, lon float64) bool {
	return false
}

// FuncTerrain builds a terrain oracle from closures, e.g. for synthetic
// elevation models.
type FuncTerrain struct {
	Alt   func(lat, lon float64) float64
	Water func(lat, lon float64) bool
}

// Altitude implements the Terrain interface.
func (t FuncTerrain) Altitude(lat, lon float64) float64 {
	return t.Alt(lat, lon)
}

// IsWater implements the Terrain interface.
func (t FuncTerrain) IsWater(lat, lon float64) bool {
	if t.Water == nil {
		return false
	}
	return t.Water(lat, lon)
}
