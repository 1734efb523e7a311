package model

// NodeClass mirrors the OPC UA NodeClass mask values.
type NodeClass int32

const (
	NodeClassUnspecified   NodeClass = 0
	NodeClassObject        NodeClass = 1
	NodeClassVariable      NodeClass = 2
	NodeClassMethod        NodeClass = 4
	NodeClassObjectType    NodeClass = 8
	NodeClassVariableType  NodeClass = 16
	NodeClassReferenceType NodeClass = 32
	NodeClassDataType      NodeClass = 64
	NodeClassView          NodeClass = 128
)

func (c NodeClass) String() string {
	switch c {
	case NodeClassObject:
		return "Object"
	case NodeClassVariable:
		return "Variable"
	case NodeClassMethod:
		return "Method"
	case NodeClassObjectType:
		return "ObjectType"
	case NodeClassVariableType:
		return "VariableType"
	case NodeClassReferenceType:
		return "ReferenceType"
	case NodeClassDataType:
		return "DataType"
	case NodeClassView:
		return "View"
	default:
		return "Unspecified"
	}
}

// DataPoint is a node found while browsing the server address space.
type DataPoint struct {
	NodeID      string    `json:"node_id"`
	DisplayName string    `json:"display_name"`
	NodeClass   NodeClass `json:"node_class"`
}

func (d DataPoint) IsVariable() bool {
	return d.NodeClass == NodeClassVariable
}
