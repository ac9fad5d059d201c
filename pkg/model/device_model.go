package model

type DeviceModel struct {
	ID                 int64  `json:"id" bson:"_id"`
	DisplayName        string `json:"display_name" bson:"display_name"`
	Description        string `json:"description,omitempty" bson:"description,omitempty"`
	DefaultDeviceValue int    `json:"default_device_value" bson:"default_device_value"`
}
