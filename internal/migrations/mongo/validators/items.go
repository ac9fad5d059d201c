package validators

import "go.mongodb.org/mongo-driver/bson"

var integerTypes = []string{"long", "int"}

var ItemValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"lookup_token",
			"name",
			"reservation_ids",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": integerTypes,
				"minimum":  1,
			},

			"lookup_token": bson.M{
				"bsonType":  "string",
				"minLength": 3,
			},

			"name": bson.M{
				"bsonType":  "string",
				"minLength": 2,
				"maxLength": 100,
			},

			"serial_number": bson.M{
				"bsonType":  "string",
				"maxLength": 100,
			},

			"notes": bson.M{
				"bsonType":  "string",
				"maxLength": 500,
			},

			"model_ref": bson.M{
				"bsonType": integerTypes,
				"minimum":  1,
			},

			"reservation_ids": bson.M{
				"bsonType": "array",
				"items": bson.M{
					"bsonType": integerTypes,
				},
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}

var DeviceModelValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "display_name"},
		"properties": bson.M{
			"_id": bson.M{
				"bsonType": integerTypes,
				"minimum":  1,
			},
			"display_name": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},
			"default_device_value": bson.M{
				"bsonType": integerTypes,
				"minimum":  0,
			},
		},
	},
}
