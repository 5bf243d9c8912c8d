package vkframe

// Technique is a small state object bound to exactly one Device for its
// lifetime, with two lifecycle callbacks (§4.8, supplemented from
// original_source/goofy.states.*).
type Technique interface {
	// OnLoad is called once, by Device.LoadTechnique.
	OnLoad(d *Device) error
	// OnDispatch is called once per Device.DispatchTechnique call,
	// typically once per frame from the main loop.
	OnDispatch(d *Device) error
}
