package cloud

import (
	"context"
	"fmt"
	"strings"
	"time"

	cfgpkg "tellusnode/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// AWSProvider opens sessions against an AWS account in one region.
type AWSProvider struct {
	cfg cfgpkg.AWSConfig
}

// NewAWSProvider creates a provider from static AWS credentials.
func NewAWSProvider(cfg cfgpkg.AWSConfig) *AWSProvider {
	return &AWSProvider{cfg: cfg}
}

func (p *AWSProvider) Connect(ctx context.Context) (Session, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(p.cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(p.cfg.AccessKeyID, p.cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &awsSession{cfg: p.cfg, client: ec2.NewFromConfig(cfg)}, nil
}

type awsSession struct {
	cfg    cfgpkg.AWSConfig
	client *ec2.Client
}

func (s *awsSession) Authorize(ctx context.Context) error {
	if _, err := s.client.DescribeRegions(ctx, &ec2.DescribeRegionsInput{}); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	return nil
}

func (s *awsSession) FindImage(ctx context.Context, name string) (*Image, error) {
	out, err := s.client.DescribeImages(ctx, &ec2.DescribeImagesInput{
		Filters: []types.Filter{
			{Name: aws.String("name"), Values: []string{name}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe images: %w", err)
	}
	if len(out.Images) == 0 {
		return nil, nil
	}
	img := out.Images[0]
	// EC2 publishes no RAM or disk floor for AMIs
	return &Image{ID: aws.ToString(img.ImageId), Name: aws.ToString(img.Name)}, nil
}

// FlavorName maps the requested shape onto t3 instance types the way the
// burstable line tiers CPU and RAM.
func (s *awsSession) FlavorName(cores, memoryGB, diskGB int) string {
	if cores <= 1 && memoryGB <= 2 {
		return string(types.InstanceTypeT3Micro)
	}
	if cores <= 2 && memoryGB <= 4 {
		return string(types.InstanceTypeT3Small)
	}
	return string(types.InstanceTypeT3Medium)
}

func (s *awsSession) FindFlavor(ctx context.Context, name string) (*Flavor, error) {
	out, err := s.client.DescribeInstanceTypes(ctx, &ec2.DescribeInstanceTypesInput{
		InstanceTypes: []types.InstanceType{types.InstanceType(name)},
	})
	if err != nil {
		if strings.Contains(err.Error(), "InvalidInstanceType") {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to describe instance types: %w", err)
	}
	if len(out.InstanceTypes) == 0 {
		return nil, nil
	}
	return &Flavor{ID: name, Name: name}, nil
}

func (s *awsSession) FindNetwork(ctx context.Context, name string) (*Network, error) {
	out, err := s.client.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{
		Filters: []types.Filter{
			{Name: aws.String("tag:Name"), Values: []string{name}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe VPCs: %w", err)
	}
	if len(out.Vpcs) == 0 {
		return nil, nil
	}
	return &Network{ID: aws.ToString(out.Vpcs[0].VpcId), Name: name}, nil
}

func (s *awsSession) FindKeypair(ctx context.Context, name string) (*Keypair, error) {
	out, err := s.client.DescribeKeyPairs(ctx, &ec2.DescribeKeyPairsInput{
		KeyNames: []string{name},
	})
	if err != nil {
		if strings.Contains(err.Error(), "InvalidKeyPair.NotFound") {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to describe key pairs: %w", err)
	}
	switch len(out.KeyPairs) {
	case 0:
		return nil, nil
	case 1:
		kp := out.KeyPairs[0]
		return &Keypair{
			Name:        aws.ToString(kp.KeyName),
			Fingerprint: aws.ToString(kp.KeyFingerprint),
		}, nil
	default:
		return nil, ErrDuplicateResource
	}
}

func (s *awsSession) CreateKeypair(ctx context.Context, name, publicKey string) (*Keypair, error) {
	out, err := s.client.ImportKeyPair(ctx, &ec2.ImportKeyPairInput{
		KeyName:           aws.String(name),
		PublicKeyMaterial: []byte(publicKey),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to import key pair: %w", err)
	}
	return &Keypair{
		Name:        aws.ToString(out.KeyName),
		PublicKey:   publicKey,
		Fingerprint: aws.ToString(out.KeyFingerprint),
	}, nil
}

func (s *awsSession) DeleteKeypair(ctx context.Context, name string) error {
	_, err := s.client.DeleteKeyPair(ctx, &ec2.DeleteKeyPairInput{
		KeyName: aws.String(name),
	})
	if err != nil {
		return fmt.Errorf("failed to delete key pair: %w", err)
	}
	return nil
}

func (s *awsSession) ListServers(ctx context.Context) ([]Server, error) {
	out, err := s.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		Filters: []types.Filter{
			{Name: aws.String("instance-state-name"), Values: []string{"pending", "running", "stopping", "stopped"}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe instances: %w", err)
	}
	var servers []Server
	for _, res := range out.Reservations {
		for i := range res.Instances {
			servers = append(servers, *s.toServer(&res.Instances[i]))
		}
	}
	return servers, nil
}

func (s *awsSession) CreateServer(ctx context.Context, req CreateServerRequest) (*Server, error) {
	out, err := s.client.RunInstances(ctx, &ec2.RunInstancesInput{
		ImageId:      aws.String(req.ImageID),
		InstanceType: types.InstanceType(req.FlavorID),
		KeyName:      aws.String(req.KeypairName),
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
		TagSpecifications: []types.TagSpecification{
			{
				ResourceType: types.ResourceTypeInstance,
				Tags: []types.Tag{
					{Key: aws.String("Name"), Value: aws.String(req.Name)},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to run instance: %w", err)
	}
	return s.toServer(&out.Instances[0]), nil
}

func (s *awsSession) WaitForServer(ctx context.Context, id, status string) (*Server, error) {
	for i := 0; i < 60; i++ {
		srv, err := s.GetServer(ctx, id)
		if err != nil {
			return nil, err
		}
		if srv.Status == status {
			return srv, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
	return nil, fmt.Errorf("timed out waiting for instance to reach status %s", status)
}

func (s *awsSession) GetServer(ctx context.Context, id string) (*Server, error) {
	out, err := s.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{id},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe instance: %w", err)
	}
	if len(out.Reservations) == 0 || len(out.Reservations[0].Instances) == 0 {
		return nil, fmt.Errorf("instance %s not found", id)
	}
	return s.toServer(&out.Reservations[0].Instances[0]), nil
}

func (s *awsSession) FindServer(ctx context.Context, name string) (*Server, error) {
	all, err := s.ListServers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].Name == name {
			return &all[i], nil
		}
	}
	return nil, nil
}

func (s *awsSession) DeleteServer(ctx context.Context, id string) error {
	_, err := s.client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{id},
	})
	if err != nil {
		return fmt.Errorf("failed to terminate instance: %w", err)
	}
	return nil
}

func (s *awsSession) AssignFloatingIP(ctx context.Context, serverID string) (string, error) {
	alloc, err := s.client.AllocateAddress(ctx, &ec2.AllocateAddressInput{
		Domain: types.DomainTypeVpc,
	})
	if err != nil {
		return "", fmt.Errorf("failed to allocate address: %w", err)
	}
	_, err = s.client.AssociateAddress(ctx, &ec2.AssociateAddressInput{
		AllocationId: alloc.AllocationId,
		InstanceId:   aws.String(serverID),
	})
	if err != nil {
		return "", fmt.Errorf("failed to associate address: %w", err)
	}
	return aws.ToString(alloc.PublicIp), nil
}

func (s *awsSession) Close() {}

func (s *awsSession) toServer(inst *types.Instance) *Server {
	status := string(inst.State.Name)
	switch inst.State.Name {
	case types.InstanceStateNameRunning:
		status = ServerStatusActive
	case types.InstanceStateNamePending:
		status = ServerStatusBuilding
	}

	name := ""
	for _, tag := range inst.Tags {
		if aws.ToString(tag.Key) == "Name" {
			name = aws.ToString(tag.Value)
		}
	}

	addrs := make([]Address, 0, 2)
	if inst.PrivateIpAddress != nil {
		addrs = append(addrs, Address{Addr: aws.ToString(inst.PrivateIpAddress), Version: 4, Type: "fixed"})
	}
	if inst.PublicIpAddress != nil {
		addrs = append(addrs, Address{Addr: aws.ToString(inst.PublicIpAddress), Version: 4, Type: "floating"})
	}

	return &Server{
		ID:        aws.ToString(inst.InstanceId),
		Name:      name,
		Status:    status,
		Addresses: map[string][]Address{s.cfg.Region + "-network": addrs},
	}
}
