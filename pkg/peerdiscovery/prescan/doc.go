// Package prescan orders the addresses of a subnet by how likely they are to
// answer. Gateways (.1, .254) come first, then reserved infrastructure, early
// and peak DHCP allocations, the main DHCP pool and finally the long tail.
// Ordering changes when a host is probed, never whether it is.
package prescan
