package cloud

import (
	"testing"

	cfgpkg "tellusnode/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

func TestAWSFlavorName(t *testing.T) {
	tests := []struct {
		cores, memory int
		expected      string
	}{
		{1, 1, "t3.micro"},
		{1, 2, "t3.micro"},
		{2, 4, "t3.small"},
		{2, 8, "t3.medium"},
		{4, 16, "t3.medium"},
	}

	s := &awsSession{}
	for _, tt := range tests {
		if got := s.FlavorName(tt.cores, tt.memory, 20); got != tt.expected {
			t.Errorf("FlavorName(%d, %d) = %q, expected %q", tt.cores, tt.memory, got, tt.expected)
		}
	}
}

func TestAWSToServer(t *testing.T) {
	s := &awsSession{cfg: cfgpkg.AWSConfig{Region: "eu-central-1"}}

	inst := &types.Instance{
		InstanceId:       aws.String("i-0abc"),
		State:            &types.InstanceState{Name: types.InstanceStateNameRunning},
		PrivateIpAddress: aws.String("172.31.0.5"),
		PublicIpAddress:  aws.String("3.68.1.2"),
		Tags: []types.Tag{
			{Key: aws.String("Name"), Value: aws.String("tellus-vm-ORDER-1")},
		},
	}

	srv := s.toServer(inst)
	if srv.ID != "i-0abc" {
		t.Errorf("Expected ID i-0abc, got %q", srv.ID)
	}
	if srv.Name != "tellus-vm-ORDER-1" {
		t.Errorf("Expected name from Name tag, got %q", srv.Name)
	}
	if srv.Status != ServerStatusActive {
		t.Errorf("Expected running to normalize to %s, got %s", ServerStatusActive, srv.Status)
	}

	addrs := srv.Addresses["eu-central-1-network"]
	if len(addrs) != 2 {
		t.Fatalf("Expected 2 addresses, got %d", len(addrs))
	}
	if addrs[1].Addr != "3.68.1.2" || addrs[1].Type != "floating" {
		t.Errorf("Unexpected public address: %+v", addrs[1])
	}
}

func TestAWSToServerPending(t *testing.T) {
	s := &awsSession{cfg: cfgpkg.AWSConfig{Region: "eu-central-1"}}
	srv := s.toServer(&types.Instance{
		InstanceId: aws.String("i-1"),
		State:      &types.InstanceState{Name: types.InstanceStateNamePending},
	})
	if srv.Status != ServerStatusBuilding {
		t.Errorf("Expected pending to normalize to %s, got %s", ServerStatusBuilding, srv.Status)
	}
	if len(srv.Addresses["eu-central-1-network"]) != 0 {
		t.Errorf("Expected no addresses, got %v", srv.Addresses)
	}
}
