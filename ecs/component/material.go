package component

import "image/color"

// Material is the appearance a block carries into the block it fuses into.
type Material struct {
	Name  string
	Color color.NRGBA
}

var MaterialComponent = NewComponent[Material]()
