package bledb

type builtinEntry struct {
	uuid string
	name string
}

// SensorTile vendor characteristics
const (
	EnvironmentalUUID = "00140000-0001-11e1-ac36-0002a5d5c51b"
	MotionUUID        = "00e00000-0001-11e1-ac36-0002a5d5c51b"
	QuaternionsUUID   = "00000100-0001-11e1-ac36-0002a5d5c51b"
	PitchRollUUID     = "00ee0000-0001-11e1-ac36-0002a5d5c51b"
)

var builtinEntries = []builtinEntry{
	// services
	{"1800", "Generic Access"},
	{"1801", "Generic Attribute"},
	{"1802", "Immediate Alert"},
	{"1803", "Link Loss"},
	{"1804", "Tx Power"},
	{"1805", "Current Time Service"},
	{"1809", "Health Thermometer"},
	{"180a", "Device Information"},
	{"180d", "Heart Rate"},
	{"180f", "Battery Service"},
	{"1810", "Blood Pressure"},
	{"1812", "Human Interface Device"},
	{"1816", "Cycling Speed and Cadence"},
	{"181a", "Environmental Sensing"},
	{"181c", "User Data"},
	{"fe59", "Nordic DFU"},

	// characteristics
	{"2a00", "Device Name"},
	{"2a01", "Appearance"},
	{"2a02", "Peripheral Privacy Flag"},
	{"2a03", "Reconnection Address"},
	{"2a04", "Peripheral Preferred Connection Parameters"},
	{"2a05", "Service Changed"},
	{"2a06", "Alert Level"},
	{"2a07", "Tx Power Level"},
	{"2a19", "Battery Level"},
	{"2a1c", "Temperature Measurement"},
	{"2a23", "System ID"},
	{"2a24", "Model Number String"},
	{"2a25", "Serial Number String"},
	{"2a26", "Firmware Revision String"},
	{"2a27", "Hardware Revision String"},
	{"2a28", "Software Revision String"},
	{"2a29", "Manufacturer Name String"},
	{"2a2a", "IEEE 11073-20601 Regulatory Certification Data List"},
	{"2a37", "Heart Rate Measurement"},
	{"2a38", "Body Sensor Location"},
	{"2a39", "Heart Rate Control Point"},
	{"2a50", "PnP ID"},
	{"2a6d", "Pressure"},
	{"2a6e", "Temperature"},
	{"2a6f", "Humidity"},
	{"2aa6", "Central Address Resolution"},

	// descriptors
	{"2900", "Characteristic Extended Properties"},
	{"2901", "Characteristic User Description"},
	{"2902", "Client Characteristic Configuration"},
	{"2903", "Server Characteristic Configuration"},
	{"2904", "Characteristic Presentation Format"},
	{"2905", "Characteristic Aggregate Format"},
	{"2908", "Report Reference"},

	// attribute types
	{"2800", "Primary Service"},
	{"2801", "Secondary Service"},
	{"2802", "Include"},
	{"2803", "Characteristic Declaration"},

	// SensorTile
	{EnvironmentalUUID, "Environmental"},
	{MotionUUID, "Accelerometer Gyroscope Magnetometer"},
	{QuaternionsUUID, "Quaternions"},
	{PitchRollUUID, "Pitch Roll"},
}
