package validators

import "go.mongodb.org/mongo-driver/bson"

var ReservationValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"name",
			"responsible",
			"item_ids",
			"start_date",
			"planned_end_date",
			"completed",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": integerTypes,
				"minimum":  1,
			},

			"name": bson.M{
				"bsonType":  "string",
				"minLength": 2,
				"maxLength": 100,
			},

			"description": bson.M{
				"bsonType":  "string",
				"maxLength": 500,
			},

			"responsible": bson.M{
				"bsonType": "string",
			},

			// item_ids may shrink to empty when items are deleted.
			"item_ids": bson.M{
				"bsonType":    "array",
				"uniqueItems": true,
				"items": bson.M{
					"bsonType": integerTypes,
					"minimum":  1,
				},
			},

			"start_date": bson.M{
				"bsonType": "date",
			},

			"planned_end_date": bson.M{
				"bsonType": "date",
			},

			"completed": bson.M{
				"bsonType": "bool",
			},

			"approval_required": bson.M{
				"bsonType": "bool",
			},

			"approved": bson.M{
				"bsonType": "bool",
			},

			"request_id": bson.M{
				"bsonType": integerTypes,
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
