package component

// FloorTag marks static ground geometry blocks can rest on.
type FloorTag struct{}

var FloorTagComponent = NewComponent[FloorTag]()
