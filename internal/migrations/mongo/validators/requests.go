package validators

import "go.mongodb.org/mongo-driver/bson"

var RequestValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"user_created",
			"start_date",
			"planned_end_date",
			"priority",
			"request_accepted",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": integerTypes,
				"minimum":  1,
			},

			"user_created": bson.M{
				"bsonType": "string",
			},

			"start_date": bson.M{
				"bsonType": "date",
			},

			"planned_end_date": bson.M{
				"bsonType": "date",
			},

			"note": bson.M{
				"bsonType":  "string",
				"maxLength": 500,
			},

			"device_count": bson.M{
				"bsonType": integerTypes,
				"minimum":  1,
				"maximum":  1000,
			},

			"sub_requests": bson.M{
				"bsonType": "array",
				"items": bson.M{
					"bsonType": "object",
					"required": []string{"model_ref", "count"},
					"properties": bson.M{
						"model_ref": bson.M{
							"bsonType": integerTypes,
							"minimum":  1,
						},
						"count": bson.M{
							"bsonType": integerTypes,
							"minimum":  1,
						},
					},
				},
			},

			"priority": bson.M{
				"bsonType": integerTypes,
				"minimum":  0,
				"maximum":  10,
			},

			"request_accepted": bson.M{
				"bsonType": "bool",
			},

			"reservation_id": bson.M{
				"bsonType": integerTypes,
			},

			"created_at": bson.M{
				"bsonType": "date",
			},

			"modified_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
