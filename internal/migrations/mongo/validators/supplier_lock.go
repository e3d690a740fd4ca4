package validators

import "go.mongodb.org/mongo-driver/bson"

var SupplierLockValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"_id", "lock_id", "supplier_id", "session_id", "acquired_at", "expires_at"},
		"additionalProperties": true,
		"properties": bson.M{
			"_id":            bson.M{"bsonType": "string", "pattern": "^supplier_lock:"},
			"lock_id":        bson.M{"bsonType": "string"},
			"supplier_id":    bson.M{"bsonType": "string", "minLength": 1},
			"inventory_unit": bson.M{"bsonType": "string"},
			"session_id":     bson.M{"bsonType": "string"},
			"acquired_at":    bson.M{"bsonType": "date"},
			"expires_at":     bson.M{"bsonType": "date"},
		},
	},
}

var PolicyValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"_id", "document", "checksum", "published_at", "active"},
		"additionalProperties": true,
		"properties": bson.M{
			"_id":          bson.M{"bsonType": "string", "minLength": 1},
			"document":     bson.M{"bsonType": "string"},
			"checksum":     bson.M{"bsonType": "string", "minLength": 64, "maxLength": 64},
			"published_at": bson.M{"bsonType": "date"},
			"active":       bson.M{"bsonType": "bool"},
		},
	},
}
