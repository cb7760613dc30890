package document

import (
	"github.com/goccy/go-json"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ajitpratap0/tidepool/pkg/errors"
)

// encode marshals doc to BSON and makes sure it carries an ObjectID _id.
// A non-zero want pins the id; a document whose own _id differs is
// rejected.
func encode(doc any, want primitive.ObjectID) (primitive.ObjectID, bson.Raw, error) {
	if doc == nil {
		return primitive.NilObjectID, nil, errors.New(errors.ErrorTypeValidation, "document is nil")
	}
	b, err := bson.Marshal(doc)
	if err != nil {
		return primitive.NilObjectID, nil, errors.Wrap(err, errors.ErrorTypeValidation, "document is not BSON-encodable")
	}
	raw := bson.Raw(b)

	if v, err := raw.LookupErr("_id"); err == nil {
		id, ok := v.ObjectIDOK()
		if !ok {
			return primitive.NilObjectID, nil, errors.Newf(errors.ErrorTypeValidation, "_id must be an ObjectID, got %s", v.Type)
		}
		if !want.IsZero() && id != want {
			return primitive.NilObjectID, nil, errors.New(errors.ErrorTypeValidation, "_id does not match the target document").
				WithDetail("id", want.Hex()).
				WithDetail("document_id", id.Hex())
		}
		return id, raw, nil
	}

	id := want
	if id.IsZero() {
		id = primitive.NewObjectID()
	}
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return primitive.NilObjectID, nil, errors.Wrap(err, errors.ErrorTypeInternal, "re-reading encoded document")
	}
	b, err = bson.Marshal(append(bson.D{{Key: "_id", Value: id}}, d...))
	if err != nil {
		return primitive.NilObjectID, nil, errors.Wrap(err, errors.ErrorTypeInternal, "encoding document with _id")
	}
	return id, b, nil
}

func insertOne(d docs, coll string, doc any) (primitive.ObjectID, error) {
	id, raw, err := encode(doc, primitive.NilObjectID)
	if err != nil {
		return primitive.NilObjectID, err
	}
	if err := d.insert(key{coll: coll, id: id}, raw); err != nil {
		return primitive.NilObjectID, err
	}
	return id, nil
}

func findOne(d docs, coll string, id primitive.ObjectID, out any) error {
	k := key{coll: coll, id: id}
	raw, ok := d.find(k)
	if !ok {
		return notFoundError(k)
	}
	if err := bson.Unmarshal(raw, out); err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "decoding document").
			WithDetail("collection", coll).
			WithDetail("id", id.Hex())
	}
	return nil
}

func replaceOne(d docs, coll string, id primitive.ObjectID, doc any) error {
	if id.IsZero() {
		return errors.New(errors.ErrorTypeValidation, "replace needs a document id")
	}
	_, raw, err := encode(doc, id)
	if err != nil {
		return err
	}
	return d.replace(key{coll: coll, id: id}, raw)
}

func deleteOne(d docs, coll string, id primitive.ObjectID) error {
	return d.remove(key{coll: coll, id: id})
}

func count(d docs, coll string) int {
	return len(d.ids(coll))
}

// exportJSON renders every document of coll, in id order, as a JSON array.
func exportJSON(d docs, coll string) ([]byte, error) {
	out := make([]bson.M, 0)
	for _, id := range d.ids(coll) {
		raw, ok := d.find(key{coll: coll, id: id})
		if !ok {
			continue
		}
		var m bson.M
		if err := bson.Unmarshal(raw, &m); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "decoding document for export")
		}
		out = append(out, m)
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "encoding export")
	}
	return b, nil
}
