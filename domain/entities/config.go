package entities

// Config holds the bridge settings.
type Config struct {
	OverflowMessage         string `yaml:"overflow_message" json:"overflow_message" validate:"required"`
	LogLevel                string `yaml:"log_level" json:"log_level" validate:"oneof=debug info warn error"`
	SlotCapacity            int    `yaml:"slot_capacity" json:"slot_capacity" validate:"min=2,max=1000"`
	PropagateListenerErrors bool   `yaml:"propagate_listener_errors" json:"propagate_listener_errors"`
	EncodedValues           bool   `yaml:"encoded_values" json:"encoded_values"`
	SeedOnRegister          bool   `yaml:"seed_on_register" json:"seed_on_register"`
}
